package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with a different existing record.
	ErrConflict = errors.New("conflict")
)

// User represents a user in the system.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Chat is a one-to-one or group conversation.
type Chat struct {
	ID              string
	Participants    []string
	IsGroup         bool
	GroupName       string
	GroupAdmin      string
	LastMessageID   string
	LastMessageTime *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeAudio, MessageTypeVideo:
		return true
	default:
		return false
	}
}

// Delivery records that a message reached an online recipient.
type Delivery struct {
	UserID      string
	DeliveredAt time.Time
}

// Read records that a recipient viewed a message.
type Read struct {
	UserID string
	ReadAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	Content     string
	Type        MessageType
	FileURL     string
	ReplyTo     string
	IsEncrypted bool
	IsDeleted   bool
	DeliveredTo []Delivery
	ReadBy      []Read
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FriendStatus is the state of a friendship record.
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
	FriendStatusBlocked  FriendStatus = "blocked"
)

// Friend is a directed friendship record: RequesterID asked, RecipientID answers.
// For FriendStatusBlocked, RequesterID is the user who blocked.
type Friend struct {
	RequesterID string
	RecipientID string
	Status      FriendStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Other returns the user on the far side of the record from userID.
func (f *Friend) Other(userID string) string {
	if f.RequesterID == userID {
		return f.RecipientID
	}
	return f.RequesterID
}

// StatusType is the content kind of a status.
type StatusType string

const (
	StatusTypeText  StatusType = "text"
	StatusTypeImage StatusType = "image"
	StatusTypeVideo StatusType = "video"
)

// Valid reports whether t is a known status type.
func (t StatusType) Valid() bool {
	switch t {
	case StatusTypeText, StatusTypeImage, StatusTypeVideo:
		return true
	default:
		return false
	}
}

// StatusView records that a user looked at a status.
type StatusView struct {
	UserID   string
	ViewedAt time.Time
}

// Status is a short-lived post shown to the author's friends.
type Status struct {
	ID              string
	UserID          string
	Content         string
	Type            StatusType
	MediaURL        string
	BackgroundColor string
	TextColor       string
	Font            string
	Views           []StatusView
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the status is past its expiry at now.
func (s *Status) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers finds up to limit users whose username or email contains query.
	SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]*User, error)
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// CreateChat persists a chat together with its participants.
	CreateChat(ctx context.Context, chat *Chat) error

	// GetChat retrieves a chat with its participants.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// FindDirectChat returns the one-to-one chat between two users.
	FindDirectChat(ctx context.Context, userA, userB string) (*Chat, error)

	// ListChatsForUser lists every chat the user participates in, most recent activity first.
	ListChatsForUser(ctx context.Context, userID string) ([]*Chat, error)

	// UpdateLastMessage points the chat at its newest message.
	UpdateLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error

	// DeleteChat removes a chat with its participants and messages.
	DeleteChat(ctx context.Context, id string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and assigns its ID and timestamps.
	// Replaying an already stored message with the same ID succeeds; a
	// different message under that ID fails with ErrConflict.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message with its delivery and read lists.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// AddDelivery records a delivery mark. Returns false if the user was already marked.
	AddDelivery(ctx context.Context, messageID, userID string, at time.Time) (bool, error)

	// AddRead records a read receipt. Returns false if the user had already read the message.
	AddRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error)

	// ListMessages returns up to limit messages of a chat older than before (if set),
	// in chronological order. Messages viewerID hid for themselves are left out;
	// an empty viewerID lists everything.
	ListMessages(ctx context.Context, chatID, viewerID string, limit int, before *time.Time) ([]*Message, error)

	// MarkMessageDeleted flags a message as deleted for everyone and replaces its content.
	MarkMessageDeleted(ctx context.Context, id, placeholder string, at time.Time) error

	// HideMessage hides a message from one user's history. Returns false if it was already hidden.
	HideMessage(ctx context.Context, messageID, userID string) (bool, error)
}

// FriendStore handles friendship persistence.
type FriendStore interface {
	// CreateFriendRequest stores a pending request from requesterID to recipientID.
	CreateFriendRequest(ctx context.Context, requesterID, recipientID string) (*Friend, error)

	// GetFriendship returns the record between two users in either direction.
	GetFriendship(ctx context.Context, userA, userB string) (*Friend, error)

	// UpdateFriendStatus changes the status of the requesterID -> recipientID record.
	UpdateFriendStatus(ctx context.Context, requesterID, recipientID string, status FriendStatus) error

	// DeleteFriendship removes the requesterID -> recipientID record.
	DeleteFriendship(ctx context.Context, requesterID, recipientID string) error

	// ListFriendships lists records touching userID with the given status.
	ListFriendships(ctx context.Context, userID string, status FriendStatus) ([]*Friend, error)

	// FriendIDs returns the ids of userID's accepted friends.
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// StatusStore handles status persistence.
type StatusStore interface {
	// CreateStatus persists a status and assigns its ID.
	CreateStatus(ctx context.Context, st *Status) error

	// GetStatus retrieves a status with its views.
	GetStatus(ctx context.Context, id string) (*Status, error)

	// ListStatuses returns the statuses of userIDs not yet expired at now,
	// newest first.
	ListStatuses(ctx context.Context, userIDs []string, now time.Time) ([]*Status, error)

	// AddStatusView records a view. Returns false if the user had already viewed it.
	AddStatusView(ctx context.Context, statusID, userID string, at time.Time) (bool, error)

	// DeleteStatus removes a status and its views.
	DeleteStatus(ctx context.Context, id string) error

	// DeleteExpiredStatuses removes statuses expired at now and reports how many.
	DeleteExpiredStatuses(ctx context.Context, now time.Time) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore
	FriendStore
	StatusStore

	// Close closes the underlying database connection.
	Close() error
}
