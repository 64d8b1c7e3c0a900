package core

// DefaultClientBuffer is the outbound queue size used when none is configured.
const DefaultClientBuffer = 64

// Client is one live, authenticated connection as seen by the core layer.
// A user may hold several clients at once.
type Client struct {
	ID       string
	UserID   string
	Username string
	Email    string
	Events   chan *Event

	// guarded by the owning Hub's mutex
	rooms  map[string]struct{}
	closed bool
}

// NewClient constructs a client with an initialized outbound queue.
func NewClient(id, userID, username string, buffer int) *Client {
	if username == "" {
		username = userID
	}
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		Events:   make(chan *Event, buffer),
		rooms:    make(map[string]struct{}),
	}
}
