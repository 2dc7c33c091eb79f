// Package nats fans chat message inserts out over NATS, so that every API
// instance sees the inserts observed by the one instance listening on the
// database.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/edgeee/community/community"
)

const subjectPrefix = "chat.messages"

// Config configures the connection to NATS.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Client is a connection to NATS that relays and delivers chat message
// inserts.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

var _ community.ChangeFeed = (*Client)(nil)

// Connect connects to the NATS server.
func Connect(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("Connected to NATS", "url", conn.ConnectedUrl())
	return &Client{conn: conn, logger: logger}, nil
}

// Close drains the connection.
func (c *Client) Close() error {
	return c.conn.Drain()
}

// Subject returns the subject the inserts into roomID are published on. An
// empty roomID matches every room.
func Subject(roomID string) string {
	if roomID == "" {
		return subjectPrefix + ".*"
	}
	return subjectPrefix + "." + roomID
}

// Forward publishes a chat message insert. It fits the signature of a
// change feed callback, so a database listener can feed the relay directly.
func (c *Client) Forward(msg community.ChatMessage) {
	if err := c.Publish(msg); err != nil {
		c.logger.Error("Could not relay message", "room_id", msg.RoomID, "message_id", msg.ID, "error", err.Error())
	}
}

// Publish publishes a chat message insert on the subject of its room.
func (c *Client) Publish(msg community.ChatMessage) error {
	payload, err := json.Marshal(event{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		AuthorID:  msg.AuthorID,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.conn.Publish(Subject(msg.RoomID), payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// SubscribeMessages delivers the inserts into roomID relayed by any
// instance.
func (c *Client) SubscribeMessages(_ context.Context, roomID string, fn func(community.ChatMessage)) (community.Subscription, error) {
	sub, err := c.conn.Subscribe(Subject(roomID), c.handler(fn))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", Subject(roomID), err)
	}
	return sub, nil
}

func (c *Client) handler(fn func(community.ChatMessage)) nats.MsgHandler {
	return func(m *nats.Msg) {
		msg, err := decode(m)
		if err != nil {
			c.logger.Error("Could not decode event", "subject", m.Subject, "error", err.Error())
			return
		}
		fn(msg)
	}
}
