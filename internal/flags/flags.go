// Package flags stores the client-local session flags (host capability and
// entry mode) in a signed cookie that downstream pages read.
package flags

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

const CookieName = "courtside_flags"

type Mode string

const (
	ModeHost  Mode = "host"
	ModeGuest Mode = "guest"
	ModeFree  Mode = "free"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeHost, ModeGuest, ModeFree:
		return true
	}
	return false
}

type Flags struct {
	IsHost bool `json:"isHost"`
	Mode   Mode `json:"mode"`
}

// Guest is what a request without a readable flags cookie is treated as.
var Guest = Flags{IsHost: false, Mode: ModeGuest}

type claims struct {
	Flags
	jwt.RegisteredClaims
}

// Codec signs and verifies flags cookies with an HMAC secret.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

func (c *Codec) Encode(f Flags) (string, error) {
	if !f.Mode.Valid() {
		return "", fmt.Errorf("encode flags: invalid mode %q", f.Mode)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{Flags: f})
	s, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign flags: %w", err)
	}
	return s, nil
}

func (c *Codec) Decode(s string) (Flags, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(s, &cl, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Flags{}, fmt.Errorf("parse flags: %w", err)
	}
	if !cl.Mode.Valid() {
		return Flags{}, errors.New("parse flags: invalid mode")
	}
	return cl.Flags, nil
}

// Write sets the flags cookie on the response.
func (c *Codec) Write(w http.ResponseWriter, f Flags) error {
	v, err := c.Encode(f)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    v,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read returns the request's flags, or Guest when the cookie is missing or
// does not verify.
func (c *Codec) Read(r *http.Request) Flags {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Guest
	}
	f, err := c.Decode(cookie.Value)
	if err != nil {
		return Guest
	}
	return f
}
