// Package messaging provides a NATS transport for the chat dispatcher. Each
// user has an inbox subject the daemon delivers to and a shared subject
// clients publish inbound text on. It exists for deployments that front the
// service with their own edge instead of the built-in WebSocket gateway.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Subject layout.
const (
	SubjectInbound = "chat.inbound"  // clients publish Envelope here
	SubjectDeliver = "chat.deliver." // + <user_id>; daemon publishes Envelope
)

// Envelope is the wire format on both subjects.
type Envelope struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"`
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int // -1 for infinite
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "pairline",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Client is the NATS-backed messenger.
type Client struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// Connect dials NATS and returns a ready client.
func Connect(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect: %w", err)
	}
	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{conn: nc}, nil
}

// Send delivers text to a user's inbox subject.
func (c *Client) Send(userID, text string) error {
	data, err := json.Marshal(Envelope{UserID: userID, Text: text, Ts: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("messaging: marshal: %w", err)
	}
	if err := c.conn.Publish(SubjectDeliver+userID, data); err != nil {
		return fmt.Errorf("messaging: publish to %s: %w", userID, err)
	}
	return nil
}

// Listen subscribes to the inbound subject and invokes handle for every
// well-formed envelope. Malformed payloads are logged and dropped.
func (c *Client) Listen(handle func(userID, text string)) error {
	sub, err := c.conn.Subscribe(SubjectInbound, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("[nats] inbound unmarshal: %v", err)
			return
		}
		if env.UserID == "" {
			log.Printf("[nats] inbound envelope without user_id")
			return
		}
		handle(env.UserID, env.Text)
	})
	if err != nil {
		return fmt.Errorf("messaging: subscribe %s: %w", SubjectInbound, err)
	}
	c.sub = sub
	return nil
}

// Close drains the subscription and the connection.
func (c *Client) Close() {
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Printf("[nats] drain: %v", err)
		}
	}
	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
}
