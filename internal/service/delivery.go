package service

import (
	"context"
	"fmt"

	"animegram/internal/models"
	"animegram/internal/notifications"
	"animegram/internal/observability"
	"animegram/internal/source"
	"animegram/internal/store"
)

const (
	TransportLocal = "local"
	TransportRedis = "redis"
)

// Deliverer hands remotely originated events to their recipient.
type Deliverer interface {
	DeliverMessage(ctx context.Context, msg models.Message) error
	DeliverNotification(ctx context.Context, n models.Notification) error
}

// Pusher fans an envelope out to a user's live connections.
type Pusher interface {
	Send(userID string, env notifications.Envelope) int
}

// LocalDeliverer applies delivered events to the recipient's store, when the
// recipient has one in this process, and pushes them to its connections.
type LocalDeliverer struct {
	registry *store.Registry
	hub      Pusher
	writer   source.Writer
}

// NewLocalDeliverer returns a deliverer over registry. hub and writer are optional.
func NewLocalDeliverer(registry *store.Registry, hub Pusher, writer source.Writer) *LocalDeliverer {
	return &LocalDeliverer{registry: registry, hub: hub, writer: writer}
}

func (d *LocalDeliverer) DeliverMessage(ctx context.Context, msg models.Message) error {
	env, err := notifications.NewEnvelope(notifications.EventMessage, msg)
	if err != nil {
		return err
	}
	return d.Apply(ctx, msg.ReceiverID, env, TransportLocal)
}

func (d *LocalDeliverer) DeliverNotification(ctx context.Context, n models.Notification) error {
	env, err := notifications.NewEnvelope(notifications.EventNotification, n)
	if err != nil {
		return err
	}
	return d.Apply(ctx, n.UserID, env, TransportLocal)
}

// Apply routes one envelope addressed to userID: a message goes through
// Receive, a notification through Add. Unknown types are only pushed.
func (d *LocalDeliverer) Apply(ctx context.Context, userID string, env notifications.Envelope, transport string) (err error) {
	span, ctx := observability.TraceDelivery(ctx, string(env.Type), userID, transport)
	defer func() {
		span.SetError(err)
		span.End()
	}()

	st, live := d.registry.Get(userID)

	switch env.Type {
	case notifications.EventMessage:
		var msg models.Message
		if err := env.Decode(&msg); err != nil {
			return err
		}
		if msg.ReceiverID != userID {
			return fmt.Errorf("message %s addressed to %s delivered to %s", msg.ID, msg.ReceiverID, userID)
		}
		if live {
			d.receive(ctx, st, msg)
		}
	case notifications.EventNotification:
		var n models.Notification
		if err := env.Decode(&n); err != nil {
			return err
		}
		if live {
			st.ApplyNotifications("add", func(s store.NotificationsState) store.NotificationsState {
				return s.Add(n)
			})
		}
	}

	if d.hub != nil {
		d.hub.Send(userID, env)
	}
	observability.DeliveredEvents.WithLabelValues(string(env.Type), transport).Inc()
	return nil
}

// receive applies Receive and, when the thread was open, persists the read.
func (d *LocalDeliverer) receive(ctx context.Context, st *store.Store, msg models.Message) {
	chat := st.ApplyChat("receive", func(c store.ChatState) store.ChatState {
		return c.Receive(msg)
	})
	if d.writer == nil || chat.ActiveConversation != msg.SenderID {
		return
	}
	if err := d.writer.MarkConversationRead(ctx, msg.ReceiverID, msg.SenderID); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to persist read receipt",
			"viewer_id", msg.ReceiverID, "counterpart_id", msg.SenderID, "error", err)
	}
}

// RedisDeliverer publishes events on the recipient's user channel; every
// instance's dispatcher applies them to the stores it holds.
type RedisDeliverer struct {
	notifier *notifications.Notifier
}

func NewRedisDeliverer(n *notifications.Notifier) *RedisDeliverer {
	return &RedisDeliverer{notifier: n}
}

func (d *RedisDeliverer) DeliverMessage(ctx context.Context, msg models.Message) error {
	env, err := notifications.NewEnvelope(notifications.EventMessage, msg)
	if err != nil {
		return err
	}
	return d.notifier.PublishUser(ctx, msg.ReceiverID, env)
}

func (d *RedisDeliverer) DeliverNotification(ctx context.Context, n models.Notification) error {
	env, err := notifications.NewEnvelope(notifications.EventNotification, n)
	if err != nil {
		return err
	}
	return d.notifier.PublishUser(ctx, n.UserID, env)
}

// NewDeliverer picks Redis fan-out when the notifier has a client and
// in-process delivery otherwise.
func NewDeliverer(n *notifications.Notifier, local *LocalDeliverer) Deliverer {
	if n.Enabled() {
		return NewRedisDeliverer(n)
	}
	return local
}

// StartDispatch routes every envelope published for any user into local
// until ctx is done.
func StartDispatch(ctx context.Context, n *notifications.Notifier, local *LocalDeliverer) error {
	return n.StartPatternSubscriber(ctx, func(userID string, env notifications.Envelope) {
		if err := local.Apply(ctx, userID, env, TransportRedis); err != nil {
			observability.GlobalLogger.WarnContext(ctx, "failed to dispatch envelope",
				"user_id", userID, "type", string(env.Type), "error", err)
		}
	})
}
