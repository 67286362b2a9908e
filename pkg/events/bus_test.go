package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

func TestPublish_HandlerErrorDoesNotAffectOthers(t *testing.T) {
	bus := newTestBus()
	got := make(chan Event, 1)

	bus.Subscribe("lifecycle.test", func(Event) error { return errors.New("subscriber exploded") })
	bus.Subscribe("lifecycle.test", func(ev Event) error {
		got <- ev
		return nil
	})

	// must not panic, block, or surface the subscriber failure
	bus.Publish(Event{Type: "lifecycle.test", SessionID: "call-1"})

	select {
	case ev := <-got:
		assert.Equal(t, "call-1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("healthy subscriber did not receive the event")
	}
}

func TestPublish_WildcardReceivesEveryType(t *testing.T) {
	bus := newTestBus()
	got := make(chan Event, 2)

	bus.Subscribe("*", func(ev Event) error {
		got <- ev
		return nil
	})

	bus.Publish(Event{Type: CallStarted})
	bus.Publish(Event{Type: SystemHealth})

	types := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-got:
			types[ev.Type] = true
		case <-time.After(time.Second):
			t.Fatal("wildcard subscriber missed an event")
		}
	}
	assert.True(t, types[CallStarted])
	assert.True(t, types[SystemHealth])
}

func TestPublish_FillsIDAndTimestamp(t *testing.T) {
	bus := newTestBus()
	got := make(chan Event, 1)

	bus.Subscribe(TranscriptUpdated, func(ev Event) error {
		got <- ev
		return nil
	})
	bus.Publish(Event{Type: TranscriptUpdated})

	select {
	case ev := <-got:
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the event")
	}
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	bus := newTestBus()
	bus.Publish(Event{Type: "nobody.listens"})
}

func TestPackageLevelPublish_UsesGlobalBus(t *testing.T) {
	got := make(chan Event, 1)
	GetBus().Subscribe("global.test", func(ev Event) error {
		got <- ev
		return nil
	})

	Publish("global.test", "call-9", map[string]interface{}{"k": "v"})

	select {
	case ev := <-got:
		assert.Equal(t, "call-9", ev.SessionID)
		assert.Equal(t, "v", ev.Data["k"])
	case <-time.After(time.Second):
		t.Fatal("global bus subscriber did not receive the event")
	}
}
