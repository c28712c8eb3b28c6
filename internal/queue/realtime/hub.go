package realtime

import (
	"context"
	"sync"
)

// Hub tracks which local sessions joined which rooms and delivers frames to them.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	members map[*Client]map[string]struct{}
	fanout  *Fanout
}

// NewHub creates a hub; a nil fanout uses defaults.
func NewHub(fanout *Fanout) *Hub {
	if fanout == nil {
		fanout = NewFanout(0, 0)
	}
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		members: make(map[*Client]map[string]struct{}),
		fanout:  fanout,
	}
}

// Join adds c to rooms.
func (h *Hub) Join(c *Client, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.members[c]
	if !ok {
		joined = make(map[string]struct{})
		h.members[c] = joined
	}
	for _, room := range rooms {
		set, ok := h.rooms[room]
		if !ok {
			set = make(map[*Client]struct{})
			h.rooms[room] = set
		}
		set[c] = struct{}{}
		joined[room] = struct{}{}
	}
}

// Leave removes c from every room it joined.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.members[c] {
		set := h.rooms[room]
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.members, c)
}

// RoomSize reports how many local sessions joined room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) clients(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.rooms[room]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Deliver sends an encoded frame to the local sessions in room.
func (h *Hub) Deliver(room string, frame []byte) {
	h.fanout.Broadcast(h.clients(room), frame)
}

// Publish encodes payload as event and delivers it to room on this node.
func (h *Hub) Publish(_ context.Context, room, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	h.Deliver(room, frame)
	return nil
}
