package hub

import (
	"encoding/json"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestEventShapes(t *testing.T) {
	raw, err := json.Marshal(Incremental(KindAdd, map[string]any{"bibNumber": "12"}))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"add","data":{"bibNumber":"12"}}`, string(raw))

	raw, err = json.Marshal(Reload())
	require.NoError(t, err)
	require.JSONEq(t, `{"action":"reload"}`, string(raw))
}

func TestPublishFanout(t *testing.T) {
	h := NewHub(logs.NewTestingLog(t))
	a := h.Subscribe()
	b := h.Subscribe()
	require.Equal(t, 2, h.NumSubscribers())

	h.Publish(Incremental(KindUpdate, "x"))
	require.JSONEq(t, `{"type":"update","data":"x"}`, string(<-a.Messages()))
	require.JSONEq(t, `{"type":"update","data":"x"}`, string(<-b.Messages()))
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := NewHub(logs.NewTestingLog(t))
	slow := h.Subscribe()
	healthy := h.Subscribe()

	// Fill both outboxes, then drain only the healthy one.
	for i := 0; i < subscriberBufferSize; i++ {
		h.Publish(Reload())
	}
	for i := 0; i < subscriberBufferSize; i++ {
		<-healthy.Messages()
	}

	// The next publish finds the slow outbox full: the slow subscriber is
	// dropped, and the healthy one still gets the message.
	h.Publish(Incremental(KindClockUpdate, nil))
	require.Equal(t, 1, h.NumSubscribers())
	require.JSONEq(t, `{"type":"clock_update","data":null}`, string(<-healthy.Messages()))

	// The dropped subscriber's channel holds its backlog, then closes.
	n := 0
	for range slow.Messages() {
		n++
	}
	require.Equal(t, subscriberBufferSize, n)
}

func TestUnsubscribe(t *testing.T) {
	h := NewHub(logs.NewTestingLog(t))
	sub := h.Subscribe()
	h.Unsubscribe(sub)
	h.Unsubscribe(sub) // idempotent
	require.Equal(t, 0, h.NumSubscribers())
	_, ok := <-sub.Messages()
	require.False(t, ok)
}

func TestClose(t *testing.T) {
	h := NewHub(logs.NewTestingLog(t))
	sub := h.Subscribe()
	h.Close()
	_, ok := <-sub.Messages()
	require.False(t, ok)

	late := h.Subscribe()
	_, ok = <-late.Messages()
	require.False(t, ok)
	h.Publish(Reload()) // no-op, must not panic
}
