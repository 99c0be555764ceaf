package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"party_server/models"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()

	var received []Event
	unsubscribe := bus.Subscribe(func(e Event) {
		received = append(received, e)
	})

	event := NewEvent(models.EventPartyCreated, "party-1", "alice", map[string]interface{}{"k": "v"})
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, received, 1)
	assert.Equal(t, models.EventPartyCreated, received[0].Type)
	assert.Equal(t, "party-1", received[0].PartyID)
	assert.Equal(t, "alice", received[0].UserID)
	assert.NotZero(t, received[0].Timestamp)

	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), NewEvent(models.EventPartyDisbanded, "party-1", "alice", nil)))
	assert.Len(t, received, 1)
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	first, second := 0, 0
	bus.Subscribe(func(Event) { first++ })
	stop := bus.Subscribe(func(Event) { second++ })

	require.NoError(t, bus.Publish(context.Background(), NewEvent(models.EventMemberJoined, "party-1", "bob", nil)))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)

	stop()
	require.NoError(t, bus.Publish(context.Background(), NewEvent(models.EventMemberLeft, "party-1", "bob", nil)))
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
}
