package websocket

import (
	"fmt"
	"log/slog"
	"strings"

	"heartline/internal/rooms"

	"github.com/nats-io/nats.go"
)

// Relay fans room frames out across instances over core NATS. Every
// instance publishes on <prefix>.<room> and delivers whatever it receives
// to its local room members.
type Relay struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	prefix string
	logger *slog.Logger
}

// NewRelay connects to url and subscribes to every room subject under prefix.
func NewRelay(url, prefix string, deliver func(room rooms.ID, frame []byte), logger *slog.Logger) (*Relay, error) {
	nc, err := nats.Connect(url,
		nats.Name("heartline"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	r := &Relay{nc: nc, prefix: prefix, logger: logger}
	sub, err := nc.Subscribe(prefix+".>", func(msg *nats.Msg) {
		room, ok := roomFromSubject(prefix, msg.Subject)
		if !ok {
			logger.Warn("unexpected relay subject", "subject", msg.Subject)
			return
		}
		deliver(room, msg.Data)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s.>: %w", prefix, err)
	}
	r.sub = sub

	logger.Info("nats relay connected", "url", nc.ConnectedUrl(), "prefix", prefix)
	return r, nil
}

// NewHubRelay connects a relay that delivers into hub and installs it.
func NewHubRelay(hub *Hub, url, prefix string) (*Relay, error) {
	r, err := NewRelay(url, prefix, hub.deliverLocal, hub.logger)
	if err != nil {
		return nil, err
	}
	hub.SetRelay(r)
	return r, nil
}

func (r *Relay) Publish(room rooms.ID, frame []byte) error {
	if err := r.nc.Publish(subjectFor(r.prefix, room), frame); err != nil {
		return fmt.Errorf("failed to publish to room %s: %w", room, err)
	}
	return nil
}

// Close drains the subscription and the connection.
func (r *Relay) Close() error {
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("failed to unsubscribe relay", "err", err)
		}
	}
	return r.nc.Drain()
}

func subjectFor(prefix string, room rooms.ID) string {
	return fmt.Sprintf("%s.%s", prefix, room)
}

func roomFromSubject(prefix, subject string) (rooms.ID, bool) {
	room, ok := strings.CutPrefix(subject, prefix+".")
	if !ok || room == "" {
		return "", false
	}
	return rooms.ID(room), true
}
