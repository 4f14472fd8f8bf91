// Package hub fans leaderboard and race clock mutations out to push
// subscribers. It is transport agnostic: subscribers receive marshaled
// messages on a channel, and the websocket layer pumps that channel onto
// the wire.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/finishcam/finishcam/pkg/idgen"
)

type Kind string

const (
	KindAdd         Kind = "add"
	KindUpdate      Kind = "update"
	KindDelete      Kind = "delete"
	KindClockUpdate Kind = "clock_update"
)

// Event is one push notification. Two shapes exist on the wire:
// incremental events, which a subscriber can apply to its local view
//
//	{"type":"add","data":{...}}
//
// and reload, which tells the subscriber to discard its view and refetch
//
//	{"action":"reload"}
//
// Anything that could leave a naively-patched client view stale or
// duplicated (bib renumber, roster import, reorder, delete) must use reload.
type Event struct {
	kind   Kind
	data   any
	reload bool
}

func Incremental(kind Kind, data any) Event {
	return Event{kind: kind, data: data}
}

func Reload() Event {
	return Event{reload: true}
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.reload {
		return json.Marshal(struct {
			Action string `json:"action"`
		}{Action: "reload"})
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
		Data any  `json:"data"`
	}{Type: e.kind, Data: e.data})
}

// A subscriber that falls this many messages behind is dropped
const subscriberBufferSize = 64

// Subscriber is one live push connection's view of the hub.
// Messages() yields marshaled events; the channel is closed when the
// subscriber is dropped or the hub shuts down.
type Subscriber struct {
	id     int64
	outbox chan []byte
}

func (s *Subscriber) Messages() <-chan []byte {
	return s.outbox
}

// Hub delivers every published event to every live subscriber.
// A slow or failed subscriber is dropped; it never blocks delivery to the
// others, and never blocks the publisher.
type Hub struct {
	log         logs.Log
	ids         idgen.Int64
	lock        sync.Mutex
	subscribers map[int64]*Subscriber
	closed      bool
}

func NewHub(log logs.Log) *Hub {
	return &Hub{
		log:         log,
		subscribers: map[int64]*Subscriber{},
	}
}

func (h *Hub) Subscribe() *Subscriber {
	h.lock.Lock()
	defer h.lock.Unlock()
	sub := &Subscriber{
		id:     h.ids.Next(),
		outbox: make(chan []byte, subscriberBufferSize),
	}
	if h.closed {
		close(sub.outbox)
		return sub
	}
	h.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscriber and closes its message channel.
// Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		close(sub.outbox)
	}
}

// Publish marshals the event once and delivers it to every subscriber.
// Publish never blocks: a subscriber whose outbox is full is dropped, and
// delivery continues to the rest.
func (h *Hub) Publish(ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.log.Errorf("Failed to marshal hub event: %v", err)
		return
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, sub := range h.subscribers {
		select {
		case sub.outbox <- raw:
		default:
			h.log.Warnf("Dropping subscriber %v (outbox full)", sub.id)
			h.removeLocked(sub)
		}
	}
}

// NumSubscribers returns the number of live subscribers
func (h *Hub) NumSubscribers() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.subscribers)
}

// Close drops all subscribers. Further Publish calls are no-ops, and
// further Subscribe calls return an already-closed subscriber.
func (h *Hub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	for _, sub := range h.subscribers {
		delete(h.subscribers, sub.id)
		close(sub.outbox)
	}
}
