package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestBus_PublishDeliversToSignalSubscribers(t *testing.T) {
	bus := NewBus()

	var unauthorized, expired int
	bus.Subscribe(Unauthorized, func(e Event) { unauthorized++ })
	bus.Subscribe(SessionExpired, func(e Event) { expired++ })

	bus.Emit(Unauthorized, "apiclient", "401 from /students")
	bus.Emit(Unauthorized, "apiclient", "401 from /notes")

	if unauthorized != 2 {
		t.Errorf("unauthorized handler called %d times, want 2", unauthorized)
	}
	if expired != 0 {
		t.Errorf("expired handler called %d times, want 0", expired)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	var a, b int
	unsubA := bus.Subscribe(LoggedOut, func(e Event) { a++ })
	bus.Subscribe(LoggedOut, func(e Event) { b++ })

	bus.Emit(LoggedOut, "test", "")
	unsubA()
	unsubA()
	bus.Emit(LoggedOut, "test", "")

	if a != 1 || b != 2 {
		t.Fatalf("got a=%d b=%d, want a=1 b=2", a, b)
	}
}

func TestBus_HandlerMayPublish(t *testing.T) {
	bus := NewBus()

	var loggedOut Event
	bus.Subscribe(LoggedOut, func(e Event) { loggedOut = e })
	bus.Subscribe(Unauthorized, func(e Event) {
		bus.Emit(LoggedOut, "provider", e.Reason)
	})

	bus.Emit(Unauthorized, "apiclient", "token revoked")

	if loggedOut.Signal != LoggedOut || loggedOut.Reason != "token revoked" {
		t.Fatalf("nested publish not delivered, got %+v", loggedOut)
	}
	if loggedOut.At.IsZero() {
		t.Error("expected publish to stamp the event time")
	}
}

func TestShouldBroadcast(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{name: "local logout", event: Event{Signal: LoggedOut, Reason: "user"}, want: true},
		{name: "remote logout", event: Event{Signal: LoggedOut, Reason: ReasonRemoteLogout}, want: false},
		{name: "other signal", event: Event{Signal: Unauthorized}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldBroadcast(tt.event); got != tt.want {
				t.Errorf("ShouldBroadcast() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedisRelay_Decode(t *testing.T) {
	relay := NewRedisRelay(NewBus(), nil, "")
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	encode := func(m relayMessage) string {
		b, _ := json.Marshal(m)
		return string(b)
	}

	tests := []struct {
		name    string
		payload string
		wantOK  bool
	}{
		{name: "remote logout", payload: encode(relayMessage{Origin: "other", Event: Event{Signal: LoggedOut, At: at}}), wantOK: true},
		{name: "own message", payload: encode(relayMessage{Origin: relay.Origin(), Event: Event{Signal: LoggedOut}}), wantOK: false},
		{name: "missing origin", payload: encode(relayMessage{Event: Event{Signal: LoggedOut}}), wantOK: false},
		{name: "non logout signal", payload: encode(relayMessage{Origin: "other", Event: Event{Signal: Unauthorized}}), wantOK: false},
		{name: "garbage", payload: "not-json", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := relay.decode(tt.payload)
			if ok != tt.wantOK {
				t.Fatalf("decode ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if e.Signal != SessionExpired || e.Reason != ReasonRemoteLogout {
				t.Errorf("decoded event = %+v", e)
			}
			if !e.At.Equal(at) {
				t.Errorf("At = %v, want %v", e.At, at)
			}
		})
	}
}

func TestRedisRelay_BroadcastSkipsRemoteLogouts(t *testing.T) {
	// nil client: reaching publish would panic
	relay := NewRedisRelay(NewBus(), nil, "")

	if err := relay.Broadcast(context.Background(), Event{Signal: LoggedOut, Reason: ReasonRemoteLogout}); err != nil {
		t.Errorf("Broadcast(remote logout) = %v", err)
	}
	if err := relay.Broadcast(context.Background(), Event{Signal: Unauthorized}); err != nil {
		t.Errorf("Broadcast(unauthorized) = %v", err)
	}
}
