package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRingKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(StatusChanged, map[string]int{"n": i})
	}

	got := h.SnapshotSince(0)
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(5), got[2].ID)

	var data map[string]int
	require.NoError(t, json.Unmarshal(got[2].Data, &data))
	assert.Equal(t, 4, data["n"])

	assert.Len(t, h.SnapshotSince(4), 1)
}

func TestHubSubscribe(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe()

	h.Publish(TaskSent, nil)
	ev := <-ch
	assert.Equal(t, TaskSent, ev.Type)
	assert.JSONEq(t, "{}", string(ev.Data))

	cancel()
	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	h.Publish(TaskAcked, nil)
	cancel()
}

func TestDiscard(t *testing.T) {
	Discard.Publish(RunStarted, struct{}{})
}
