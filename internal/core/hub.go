package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/metrics"
)

// Hub is the connection registry and the process-wide broadcast handle.
//
// It is built once, started once and injected into every component that
// broadcasts. Calls made before Start, or after Shutdown, fail with
// ErrHubNotRunning. Broadcasts never block: a recipient whose queue is full
// misses the event and the rest of the channel still gets it.
type Hub struct {
	mu      sync.RWMutex
	running bool
	once    sync.Once

	clients map[*Client]struct{}
	rooms   map[string]*Room

	log     *zerolog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub. Both arguments may be nil.
func NewHub(logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]*Room),
		log:     logger,
		metrics: m,
	}
}

// Start marks the hub as running. Calling it again has no effect.
func (h *Hub) Start() {
	h.once.Do(func() {
		h.mu.Lock()
		h.running = true
		h.mu.Unlock()
	})
}

// Run starts the hub and shuts it down when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.Start()
	<-ctx.Done()
	h.Shutdown()
}

// Shutdown closes every client queue and stops accepting operations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	for c := range h.clients {
		h.closeClientLocked(c)
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]*Room)
}

// Running reports whether broadcasts are accepted.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Register adds a connection to the registry.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrHubNotRunning
	}
	if _, ok := h.clients[c]; ok {
		return nil
	}
	h.clients[c] = struct{}{}
	h.metrics.ConnectionOpened()
	return nil
}

// Unregister removes a connection from all channels and closes its queue.
// It returns the channels the connection was in.
func (h *Hub) Unregister(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return nil
	}

	left := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		left = append(left, name)
		if room, ok := h.rooms[name]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, name)
			}
		}
	}
	delete(h.clients, c)
	h.closeClientLocked(c)
	h.metrics.ConnectionClosed()
	return left
}

func (h *Hub) closeClientLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	c.rooms = make(map[string]struct{})
	close(c.Events)
}

// Join subscribes a registered connection to a channel. Joining twice is a no-op.
func (h *Hub) Join(c *Client, channel string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return false, ErrHubNotRunning
	}
	if _, ok := h.clients[c]; !ok {
		return false, nil
	}

	room, ok := h.rooms[channel]
	if !ok {
		room = NewRoom(channel)
		h.rooms[channel] = room
	}
	added := room.AddClient(c)
	c.rooms[channel] = struct{}{}
	return added, nil
}

// Leave unsubscribes a connection from a channel. Leaving a channel that was
// never joined is a no-op.
func (h *Hub) Leave(c *Client, channel string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return false, ErrHubNotRunning
	}

	delete(c.rooms, channel)
	room, ok := h.rooms[channel]
	if !ok {
		return false, nil
	}
	removed := room.RemoveClient(c)
	if room.Empty() {
		delete(h.rooms, channel)
	}
	return removed, nil
}

// InChannel reports whether the connection joined the channel.
func (h *Hub) InChannel(c *Client, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[channel]
	return ok
}

// Channels lists the channels a connection is in.
func (h *Hub) Channels(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		out = append(out, name)
	}
	return out
}

// ChannelSize returns the number of connections in a channel.
func (h *Hub) ChannelSize(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[channel]; ok {
		return room.Size()
	}
	return 0
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastRoom delivers an event to every connection in a channel except one (may be nil).
func (h *Hub) BroadcastRoom(channel string, ev *Event, except *Client) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}
	room, ok := h.rooms[channel]
	if !ok {
		return nil
	}
	h.reportDrops(ev, room.Broadcast(ev, except))
	return nil
}

// BroadcastAll delivers an event to every registered connection except one (may be nil).
func (h *Hub) BroadcastAll(ev *Event, except *Client) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}
	var dropped []*Client
	for c := range h.clients {
		if c == except {
			continue
		}
		if !trySend(c, ev) {
			dropped = append(dropped, c)
		}
	}
	h.reportDrops(ev, dropped)
	return nil
}

// BroadcastRooms delivers an event once to every connection that is in at
// least one of the channels, except one (may be nil).
func (h *Hub) BroadcastRooms(channels []string, ev *Event, except *Client) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}
	seen := make(map[*Client]struct{})
	var dropped []*Client
	for _, name := range channels {
		room, ok := h.rooms[name]
		if !ok {
			continue
		}
		for c := range room.clients {
			if c == except {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			if !trySend(c, ev) {
				dropped = append(dropped, c)
			}
		}
	}
	h.reportDrops(ev, dropped)
	return nil
}

// SendUser delivers an event to every connection of a user.
func (h *Hub) SendUser(userID string, ev *Event) error {
	return h.BroadcastRoom(UserChannel(userID), ev, nil)
}

// Send delivers an event to a single connection.
func (h *Hub) Send(c *Client, ev *Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}
	if !trySend(c, ev) {
		h.reportDrops(ev, []*Client{c})
	}
	return nil
}

func (h *Hub) reportDrops(ev *Event, dropped []*Client) {
	for _, c := range dropped {
		if c.closed {
			continue
		}
		h.metrics.EventDropped(ev.Kind.String())
		h.log.Warn().
			Str("conn_id", c.ID).
			Str("user_id", c.UserID).
			Str("event", ev.Kind.String()).
			Msg("dropping event for slow consumer")
	}
}
