package model

import (
	"encoding/json"
	"time"
)

type Game struct {
	Code      string          `json:"code"`
	Sport     string          `json:"sport"`
	OwnerUID  string          `json:"owner_uid,omitempty"`
	HostKey   string          `json:"-"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
