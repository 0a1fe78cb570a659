// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish forwards device notifications to Redis.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

// Message is the JSON document published for one notification.
type Message struct {
	Origin   string         `json:"origin"`
	Kind     string         `json:"kind"`
	Received time.Time      `json:"received"`
	Text     string         `json:"text"`
	Data     map[string]any `json:"data,omitempty"`
}

// Publisher publishes notifications on a Pub/Sub channel and keeps the
// most recent ones per kind in capped lists.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	history int64
	log     logrus.FieldLogger
}

// NewPublisher wraps client. history is the length of each capped list;
// zero disables the lists.
func NewPublisher(client redis.UniversalClient, channel string, history int64, log logrus.FieldLogger) *Publisher {
	return &Publisher{client: client, channel: channel, history: history, log: log}
}

// Connect creates a client for addr and checks that the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// ListKey returns the capped list holding notifications of kind.
func (p *Publisher) ListKey(origin aurora.Origin, kind string) string {
	return fmt.Sprintf("%s:%s:%s", p.channel, origin, kind)
}

// Publish sends ev if it is an out-of-band notification.
func (p *Publisher) Publish(ctx context.Context, origin aurora.Origin, ev aurora.Event) error {
	if !ev.OutOfBand() {
		return nil
	}
	msg := NewMessage(origin, ev)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msg.Kind, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	if p.history > 0 {
		key := p.ListKey(origin, msg.Kind)
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, p.history-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Kind, err)
	}
	return nil
}

// Subscriber returns a notification handler that publishes each event
// and logs failures.
func (p *Publisher) Subscriber(ctx context.Context, origin aurora.Origin) func(aurora.Event) {
	return func(ev aurora.Event) {
		if err := p.Publish(ctx, origin, ev); err != nil {
			p.log.WithError(err).Warn("publish failed")
		}
	}
}

// NewMessage builds the published document for ev.
func NewMessage(origin aurora.Origin, ev aurora.Event) Message {
	msg := Message{
		Origin:   string(origin),
		Kind:     aurora.EventKind(ev),
		Received: time.Now(),
		Text:     aurora.FormatEvent(ev),
	}
	switch e := ev.(type) {
	case aurora.LogEntry:
		msg.Received = e.Received
		msg.Data = map[string]any{
			"type":     e.Type,
			"clock":    e.Clock,
			"offsetMs": e.Offset.Milliseconds(),
			"message":  e.Message,
		}
	case aurora.AuroraEvent:
		msg.Received = e.Received
		msg.Data = map[string]any{"id": e.ID, "name": e.Name, "flags": e.Flags}
	case aurora.DataSample:
		msg.Received = e.Received
		msg.Data = map[string]any{"name": e.Name, "values": e.Values}
	case aurora.StreamData:
		msg.Received = e.Received
		values := make([]float64, len(e.Values))
		for i, v := range e.Values {
			values[i] = aurora.ToFloat64(v)
		}
		msg.Data = map[string]any{"id": e.ID, "name": e.Name, "type": e.Type.String(), "values": values}
	case aurora.UnknownLine:
		msg.Data = map[string]any{"line": e.Line}
	case aurora.ParseError:
		msg.Data = map[string]any{"error": e.Err.Error()}
	}
	return msg
}
