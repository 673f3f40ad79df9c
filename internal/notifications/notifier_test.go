package notifications

import (
	"context"
	"testing"
	"time"

	"animegram/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())

	env, err := NewEnvelope(EventNotification, map[string]string{"id": "n1"})
	require.NoError(t, err)
	assert.NoError(t, n.PublishUser(context.Background(), "u1", env))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), func(string, Envelope) {
		t.Fatal("no subscriber without redis")
	}))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "notifications:user:u1", UserChannel("u1"))

	tests := []struct {
		channel string
		userID  string
		ok      bool
	}{
		{"notifications:user:u1", "u1", true},
		{"notifications:user:", "", false},
		{"chat:conv:5", "", false},
	}
	for _, tt := range tests {
		userID, ok := ParseUserChannel(tt.channel)
		assert.Equal(t, tt.ok, ok, tt.channel)
		assert.Equal(t, tt.userID, userID, tt.channel)
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	msg := models.Message{ID: "m1", Content: "hello", SenderID: "u1", ReceiverID: "u2"}
	env, err := NewEnvelope(EventMessage, msg)
	require.NoError(t, err)

	var got models.Message
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Content, got.Content)

	assert.Error(t, Envelope{Type: EventMessage, Payload: []byte("{")}.Decode(&got))
}

func TestNotifier_PublishReachesSubscriber(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type delivery struct {
		userID string
		env    Envelope
	}
	got := make(chan delivery, 4)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(userID string, env Envelope) {
		got <- delivery{userID, env}
	}))

	env, err := NewEnvelope(EventNotification, models.Notification{ID: "n1", Type: models.NotificationLike})
	require.NoError(t, err)
	require.NoError(t, n.PublishUser(context.Background(), "u2", env))

	select {
	case d := <-got:
		assert.Equal(t, "u2", d.userID)
		assert.Equal(t, EventNotification, d.env.Type)
		var notif models.Notification
		require.NoError(t, d.env.Decode(&notif))
		assert.Equal(t, "n1", notif.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("envelope not delivered")
	}
}

func TestNotifier_SubscriberSkipsMalformedPayloads(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(userID string, env Envelope) {
		got <- string(env.Type)
	}))

	require.NoError(t, rdb.Publish(context.Background(), UserChannel("u1"), "not json").Err())
	env, _ := NewEnvelope(EventMessage, map[string]string{})
	require.NoError(t, n.PublishUser(context.Background(), "u1", env))

	select {
	case typ := <-got:
		assert.Equal(t, string(EventMessage), typ)
	case <-time.After(2 * time.Second):
		t.Fatal("valid envelope not delivered")
	}
}

func TestNotifier_SubscriberRecoversFromPanics(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 4)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(string, Envelope) {
		calls <- struct{}{}
		panic("boom")
	}))

	env, _ := NewEnvelope(EventMessage, map[string]string{})
	require.NoError(t, n.PublishUser(context.Background(), "u1", env))
	require.NoError(t, n.PublishUser(context.Background(), "u1", env))

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber stopped after a panic")
		}
	}
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())

	payloads := make(chan Envelope, 4)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_ string, env Envelope) {
		payloads <- env
	}))

	cancel()
	assert.Eventually(t, func() bool {
		patterns, err := rdb.PubSubNumPat(context.Background()).Result()
		return err == nil && patterns == 0
	}, time.Second, 10*time.Millisecond)

	env, _ := NewEnvelope(EventMessage, map[string]string{})
	require.NoError(t, n.PublishUser(context.Background(), "u1", env))
	assert.Never(t, func() bool { return len(payloads) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
}
