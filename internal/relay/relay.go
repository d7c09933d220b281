// Package relay fans live game updates out across Courtside instances over
// NATS so spectators connected to any replica see every host update.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	ws "github.com/dukerupert/courtside/internal/websocket"
)

const (
	DefaultSubjectPrefix = "courtside.games"
	originHeader         = "Courtside-Origin"
)

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Local is the in-process fan-out the relay feeds.
type Local interface {
	Broadcast(msg ws.Message)
}

// Relay broadcasts locally and publishes to NATS. Messages from other
// instances are forwarded into the local hub; our own echoes are dropped.
type Relay struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	local  Local
	origin string
	prefix string
	logger *slog.Logger
}

func Connect(cfg Config, local Local, logger *slog.Logger) (*Relay, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	r := &Relay{
		local:  local,
		origin: uuid.NewString(),
		prefix: strings.TrimSuffix(cfg.SubjectPrefix, "."),
		logger: logger,
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("courtside-"+r.origin),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	r.nc = nc

	sub, err := nc.Subscribe(r.prefix+".*", r.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s.*: %w", r.prefix, err)
	}
	r.sub = sub

	logger.Info("relay connected", "url", nc.ConnectedUrl(), "origin", r.origin)
	return r, nil
}

func (r *Relay) subject(code string) string {
	return r.prefix + "." + code
}

// Broadcast delivers msg to local spectators and publishes it for the other
// instances. Publish failures are logged; local delivery still happens.
func (r *Relay) Broadcast(msg ws.Message) {
	r.local.Broadcast(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal relay message", "code", msg.Code, "error", err)
		return
	}
	out := &nats.Msg{
		Subject: r.subject(msg.Code),
		Data:    data,
		Header:  nats.Header{originHeader: []string{r.origin}},
	}
	if err := r.nc.PublishMsg(out); err != nil {
		r.logger.Error("publish relay message", "code", msg.Code, "error", err)
	}
}

func (r *Relay) handle(m *nats.Msg) {
	if m.Header.Get(originHeader) == r.origin {
		return
	}
	var msg ws.Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		r.logger.Warn("drop malformed relay message", "subject", m.Subject, "error", err)
		return
	}
	if msg.Code == "" || r.subject(msg.Code) != m.Subject {
		r.logger.Warn("drop relay message with mismatched code", "subject", m.Subject, "code", msg.Code)
		return
	}
	r.local.Broadcast(msg)
}

// Close drains the subscription and closes the connection.
func (r *Relay) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
	if r.nc != nil {
		r.nc.Close()
	}
}
