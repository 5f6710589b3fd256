package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesEmittedEvents(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Emit("orchestrator", &CycleStartedData{InstanceID: "inst-1", DecisionGate: true})

	event := <-ch
	assert.Equal(t, CycleStarted, event.Type)
	assert.Equal(t, "orchestrator", event.Module)
	assert.Equal(t, "inst-1", event.Data["instance_id"])
	assert.Equal(t, true, event.Data["decision_gate"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsubscribe := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())

	unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open, "channel closes on unsubscribe")

	// Unsubscribing twice is safe
	unsubscribe()
}

func TestEmitNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// Overfill the subscriber buffer without reading
	for i := 0; i < 100; i++ {
		bus.Emit("orchestrator", &CycleStartedData{InstanceID: "inst"})
	}

	// The buffered 64 events are readable, the rest were dropped
	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			assert.Equal(t, 64, drained)
			return
		}
	}
}

func TestEmitNilDataIsNoOp(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Emit("orchestrator", nil)

	select {
	case event := <-ch:
		t.Fatalf("unexpected event %v", event)
	default:
	}
}

func TestEmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.EmitError("ledger", assert.AnError, map[string]interface{}{"agent_id": "agent-1"})

	event := <-ch
	require.Equal(t, ErrorOccurred, event.Type)
	assert.Equal(t, assert.AnError.Error(), event.Data["error"])
}
