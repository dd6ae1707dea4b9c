package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToTypedSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	got := make(chan Event, 1)
	bus.Subscribe(RoundStarted, func(ev Event) { got <- ev })

	bus.Publish(Event{Type: RoundStarted, Data: SessionData{SessionID: "s1"}})

	select {
	case ev := <-got:
		assert.Equal(t, RoundStarted, ev.Type)
		assert.Equal(t, SessionData{SessionID: "s1"}, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusDoesNotDeliverOtherTypes(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int
	bus.Subscribe(RoundStarted, func(ev Event) { count++ })
	bus.Publish(Event{Type: RoundFinished})

	assert.Zero(t, count)
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var seen []Type
	bus.SubscribeAll(func(ev Event) { seen = append(seen, ev.Type) })

	bus.Publish(Event{Type: ConnOpened})
	bus.Publish(Event{Type: ToolForwarded})

	assert.Equal(t, []Type{ConnOpened, ToolForwarded}, seen)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int
	unsub := bus.Subscribe(PartUpdated, func(ev Event) { count++ })

	bus.Publish(Event{Type: PartUpdated})
	unsub()
	bus.Publish(Event{Type: PartUpdated})

	assert.Equal(t, 1, count)
}

func TestBusMirrorsToWatermill(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := bus.Messages(ctx)
	require.NoError(t, err)

	bus.Publish(Event{Type: ToolResolved, Data: ToolData{ToolCallID: "read_file-x"}})

	select {
	case msg := <-msgs:
		var ev struct {
			Type Type `json:"type"`
			Data struct {
				ToolCallID string `json:"toolCallId"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, ToolResolved, ev.Type)
		assert.Equal(t, "read_file-x", ev.Data.ToolCallID)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("watermill message not received")
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus()
	var count int
	bus.Subscribe(ConnClosed, func(ev Event) { count++ })

	require.NoError(t, bus.Close())
	bus.Publish(Event{Type: ConnClosed})

	assert.Zero(t, count)
}
