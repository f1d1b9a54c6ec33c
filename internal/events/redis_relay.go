package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
)

// ReasonRemoteLogout marks a logout that was triggered by another process.
// Such logouts are not broadcast again.
const ReasonRemoteLogout = "logged out in another window"

const (
	defaultRelayChannel   = "crm:auth:events"
	defaultPublishTimeout = 2 * time.Second
)

// relayMessage is the wire format on the Redis channel.
type relayMessage struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay mirrors local logouts to every other client process subscribed to
// the same channel, and turns their logouts into local SessionExpired signals.
type RedisRelay struct {
	bus     *Bus
	client  *redis.Client
	channel string
	origin  string
	log     *slog.Logger
}

func NewRedisRelay(bus *Bus, client *redis.Client, channel string) *RedisRelay {
	if channel == "" {
		channel = defaultRelayChannel
	}
	return &RedisRelay{
		bus:     bus,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     logger.With("event_relay"),
	}
}

// Origin identifies this process on the channel.
func (r *RedisRelay) Origin() string {
	return r.origin
}

// Run forwards events in both directions until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("relay: failed to subscribe to %s: %w", r.channel, err)
	}

	unsubscribe := r.bus.Subscribe(LoggedOut, func(e Event) {
		pubCtx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		defer cancel()
		if err := r.Broadcast(pubCtx, e); err != nil {
			r.log.Warn("failed to broadcast logout", "error", err)
		}
	})
	defer unsubscribe()

	r.log.Info("relay started", "channel", r.channel, "origin", r.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay: channel closed")
			}
			if e, ok := r.decode(msg.Payload); ok {
				r.bus.Publish(e)
			}
		}
	}
}

// Broadcast sends a local logout to the other processes on the channel.
// Events that must not travel are ignored. Short-lived processes call it
// directly instead of running the relay.
func (r *RedisRelay) Broadcast(ctx context.Context, e Event) error {
	if !ShouldBroadcast(e) {
		return nil
	}
	return r.publish(ctx, e)
}

func (r *RedisRelay) publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(relayMessage{Origin: r.origin, Event: e})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// decode turns a remote logout into a local SessionExpired event.
// Messages from this process and unknown signals are dropped.
func (r *RedisRelay) decode(payload string) (Event, bool) {
	var m relayMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		r.log.Debug("ignoring malformed relay message", "error", err)
		return Event{}, false
	}
	if m.Origin == "" || m.Origin == r.origin || m.Event.Signal != LoggedOut {
		return Event{}, false
	}
	return Event{
		Signal: SessionExpired,
		Reason: ReasonRemoteLogout,
		Source: "relay:" + m.Origin,
		At:     m.Event.At,
	}, true
}

// ShouldBroadcast reports whether a local logout should be sent to other processes.
func ShouldBroadcast(e Event) bool {
	return e.Signal == LoggedOut && e.Reason != ReasonRemoteLogout
}
