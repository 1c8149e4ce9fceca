// Package feed delivers live raw records over NATS. Upstream channel ingest
// publishes one record per message on the channel's subject; sessions append
// them at the bottom of the timeline.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Subject returns the record subject for a channel.
func Subject(channelID string) string {
	return fmt.Sprintf("loom.channel.%s.records", channelID)
}

// Handler receives one raw record for a channel.
type Handler func(channelID string, record json.RawMessage)

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func Connect(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// SubscribeChannel delivers every record published for the channel to the
// handler, in publish order.
func (c *Client) SubscribeChannel(channelID string, h Handler) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(Subject(channelID), func(msg *nats.Msg) {
		h(channelID, json.RawMessage(msg.Data))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", Subject(channelID), err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed to channel feed", "channel_id", channelID)
	return sub, nil
}

// SubscribeAll delivers records for every channel. The channel id is read
// back out of the subject.
func (c *Client) SubscribeAll(h Handler) (*nats.Subscription, error) {
	wildcard := "loom.channel.*.records"
	sub, err := c.conn.Subscribe(wildcard, func(msg *nats.Msg) {
		parts := strings.Split(msg.Subject, ".")
		if len(parts) != 4 {
			c.logger.Warn("record on malformed subject", "subject", msg.Subject)
			return
		}
		h(parts[2], json.RawMessage(msg.Data))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", wildcard, err)
	}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// Publish sends one raw record for a channel. Used by ingest-side tooling.
func (c *Client) Publish(channelID string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return c.conn.Publish(Subject(channelID), payload)
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
