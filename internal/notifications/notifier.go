// Package notifications provides real-time delivery of chat messages,
// notifications and store change events to connected viewers.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"animegram/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix  = "notifications:user:"
	userChannelPattern = userChannelPrefix + "*"
)

// EventType tags the payload carried by an Envelope.
type EventType string

const (
	EventMessage         EventType = "message"
	EventNotification    EventType = "notification"
	EventStateChange     EventType = "state_change"
	EventSnapshot        EventType = "snapshot"
	EventPong            EventType = "pong"
	EventMessagesDropped EventType = "messages_dropped"
	EventError           EventType = "error"
)

// Envelope is the wire form of every published and pushed event.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload under the given type.
func NewEnvelope(t EventType, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// Decode unmarshals the payload into dest.
func (e Envelope) Decode(dest interface{}) error {
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// ParseUserChannel extracts the user ID from a channel built by UserChannel.
func ParseUserChannel(channel string) (string, bool) {
	userID, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// Notifier publishes envelopes into per-user Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether the notifier has a Redis client to publish through.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishUser sends env to the user's channel. Without Redis it is a no-op.
func (n *Notifier) PublishUser(ctx context.Context, userID string, env Envelope) error {
	if !n.Enabled() {
		return nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := n.rdb.Publish(ctx, UserChannel(userID), data).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish to %s: %w", UserChannel(userID), err)
	}
	return nil
}

// StartPatternSubscriber subscribes to every user channel and calls onMessage
// for each envelope until ctx is done. It returns once the subscription is
// confirmed, so envelopes published afterwards are not missed.
func (n *Notifier) StartPatternSubscriber(ctx context.Context, onMessage func(userID string, env Envelope)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", userChannelPattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				userID, valid := ParseUserChannel(msg.Channel)
				if !valid {
					observability.GlobalLogger.Warn("invalid notification channel", slog.String("channel", msg.Channel))
					continue
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					observability.GlobalLogger.Warn("malformed envelope",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("panic in pattern subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(userID, env)
				}()
			}
		}
	}()

	return nil
}
