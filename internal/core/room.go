package core

import "strings"

const (
	userChannelPrefix = "user:"
	chatChannelPrefix = "chat:"
)

// UserChannel is the personal channel every connection of a user joins.
func UserChannel(userID string) string { return userChannelPrefix + userID }

// ChatChannel is the fan-out channel of one chat.
func ChatChannel(chatID string) string { return chatChannelPrefix + chatID }

// ChatIDFromChannel returns the chat id of a chat channel name.
func ChatIDFromChannel(name string) (string, bool) {
	if !strings.HasPrefix(name, chatChannelPrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, chatChannelPrefix), true
}

// Room groups clients subscribed to the same channel.
type Room struct {
	Name    string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Broadcast sends an event to all clients in the room except one (may be nil).
// Slow consumers are skipped; the returned slice lists them.
func (r *Room) Broadcast(event *Event, except *Client) (dropped []*Client) {
	for client := range r.clients {
		if client == except {
			continue
		}
		if !trySend(client, event) {
			dropped = append(dropped, client)
		}
	}
	return dropped
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

// Size is the number of joined clients.
func (r *Room) Size() int {
	return len(r.clients)
}

func trySend(c *Client, event *Event) bool {
	if c.closed {
		return false
	}
	select {
	case c.Events <- event:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}
