// Package chats holds the request/response side of chat management: creating
// and deleting chats, listing them with presence, history, message deletion
// and typing lookups.
package chats

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/presence"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// Common errors for chat operations.
var (
	ErrCannotChatSelf    = errors.New("cannot create chat with yourself")
	ErrUserNotFound      = errors.New("user not found")
	ErrChatNotFound      = errors.New("chat not found")
	ErrNotParticipant    = errors.New("not a participant of this chat")
	ErrGroupTooSmall     = errors.New("group must have at least 3 participants")
	ErrGroupNameRequired = errors.New("group name is required")
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotSender         = errors.New("only the sender can delete a message for everyone")
)

// DeletedPlaceholder replaces the content of a message deleted for everyone.
const DeletedPlaceholder = "This message was deleted"

const (
	// DefaultPageSize is the history page size when none is requested.
	DefaultPageSize = 50
	// MaxPageSize caps a single history page.
	MaxPageSize = 200
)

// Notifier pushes events to the live connections of users.
type Notifier interface {
	Notify(userIDs []string, ev *core.Event) error
}

// searchLimit caps user search results.
const searchLimit = 10

// UserView is a user together with their online flag.
type UserView struct {
	User   *store.User
	Online bool
}

// ChatView is a chat together with the online flag of each participant.
type ChatView struct {
	Chat   *store.Chat
	Online map[string]bool
}

// Service provides chat management business logic.
type Service struct {
	store    store.Store
	presence presence.Store
	notifier Notifier
	log      *zerolog.Logger
}

// New creates a new chat service. notifier may be nil.
func New(st store.Store, ps presence.Store, notifier Notifier, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:    st,
		presence: ps,
		notifier: notifier,
		log:      logger,
	}
}

// CreateDirect returns the one-to-one chat between two users, creating it if
// needed. created reports whether a new chat was stored.
func (s *Service) CreateDirect(ctx context.Context, userID, otherID string) (chat *store.Chat, created bool, err error) {
	if userID == otherID {
		return nil, false, ErrCannotChatSelf
	}
	if err := s.requireUser(ctx, otherID); err != nil {
		return nil, false, err
	}

	existing, err := s.store.FindDirectChat(ctx, userID, otherID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, fmt.Errorf("find direct chat: %w", err)
	}

	chat = &store.Chat{
		ID:           uuid.NewString(),
		Participants: []string{userID, otherID},
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, false, fmt.Errorf("create chat: %w", err)
	}
	s.announce(chat)
	return chat, true, nil
}

// CreateGroup creates a named group chat administered by adminID. The admin
// is added to the participants when missing.
func (s *Service) CreateGroup(ctx context.Context, adminID, name string, members []string) (*store.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrGroupNameRequired
	}

	participants := make([]string, 0, len(members)+1)
	for _, id := range members {
		if id != "" && !slices.Contains(participants, id) {
			participants = append(participants, id)
		}
	}
	if !slices.Contains(participants, adminID) {
		participants = append(participants, adminID)
	}
	if len(participants) < 3 {
		return nil, ErrGroupTooSmall
	}
	for _, id := range participants {
		if id == adminID {
			continue
		}
		if err := s.requireUser(ctx, id); err != nil {
			return nil, err
		}
	}

	chat := &store.Chat{
		ID:           uuid.NewString(),
		Participants: participants,
		IsGroup:      true,
		GroupName:    name,
		GroupAdmin:   adminID,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.announce(chat)
	return chat, nil
}

// Get returns one chat the user participates in.
func (s *Service) Get(ctx context.Context, userID, chatID string) (*ChatView, error) {
	chat, err := s.participantChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return &ChatView{Chat: chat, Online: s.onlineFlags(ctx, chat.Participants)}, nil
}

// List returns the user's chats, most recent activity first, with presence.
func (s *Service) List(ctx context.Context, userID string) ([]ChatView, error) {
	chats, err := s.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	views := make([]ChatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, ChatView{Chat: chat, Online: s.onlineFlags(ctx, chat.Participants)})
	}
	return views, nil
}

// Messages returns one page of history in chronological order. before, when
// set, pages backwards from that instant.
func (s *Service) Messages(ctx context.Context, userID, chatID string, limit int, before *time.Time) ([]*store.Message, error) {
	if _, err := s.participantChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	msgs, err := s.store.ListMessages(ctx, chatID, userID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// DeleteMessage removes a message. forEveryone is reserved to the sender and
// blanks the message for all participants, who are told with message:deleted;
// otherwise the message is only hidden from userID's history.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID string, forEveryone bool) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrMessageNotFound
	case err != nil:
		return fmt.Errorf("get message: %w", err)
	}
	chat, err := s.participantChat(ctx, userID, msg.ChatID)
	if err != nil {
		return err
	}

	if !forEveryone {
		if _, err := s.store.HideMessage(ctx, messageID, userID); err != nil {
			return fmt.Errorf("hide message: %w", err)
		}
		return nil
	}

	if msg.SenderID != userID {
		return ErrNotSender
	}
	if msg.IsDeleted {
		return nil
	}
	if err := s.store.MarkMessageDeleted(ctx, messageID, DeletedPlaceholder, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.notify(chat.Participants, core.MessageDeleted(chat.ID, messageID))
	return nil
}

// DeleteChat removes a chat and all of its messages. Any participant may do it.
func (s *Service) DeleteChat(ctx context.Context, userID, chatID string) error {
	chat, err := s.participantChat(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	s.notify(chat.Participants, core.ChatDeleted(chat))
	return nil
}

// OnlineUsers lists every user currently online.
func (s *Service) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := s.presence.OnlineUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("online users: %w", err)
	}
	return users, nil
}

// Typing lists who is typing in a chat right now.
func (s *Service) Typing(ctx context.Context, userID, chatID string) ([]string, error) {
	if _, err := s.participantChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	users, err := s.presence.ListTyping(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list typing: %w", err)
	}
	return users, nil
}

// Presence returns the presence record of a user.
func (s *Service) Presence(ctx context.Context, userID string) (presence.Record, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return presence.Record{}, err
	}
	rec, err := s.presence.Get(ctx, userID)
	if err != nil {
		return presence.Record{}, fmt.Errorf("get presence: %w", err)
	}
	return rec, nil
}

// SearchUsers finds other users by username or email, with presence.
func (s *Service) SearchUsers(ctx context.Context, userID, query string) ([]UserView, error) {
	users, err := s.store.SearchUsers(ctx, strings.TrimSpace(query), userID, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	flags := s.onlineFlags(ctx, ids)

	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, UserView{User: u, Online: flags[u.ID]})
	}
	return views, nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	_, err := s.store.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	case err != nil:
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}

func (s *Service) participantChat(ctx context.Context, userID, chatID string) (*store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrChatNotFound
	case err != nil:
		return nil, fmt.Errorf("get chat: %w", err)
	case !chat.HasParticipant(userID):
		return nil, ErrNotParticipant
	}
	return chat, nil
}

// onlineFlags degrades to "offline" for users whose presence lookup fails.
func (s *Service) onlineFlags(ctx context.Context, userIDs []string) map[string]bool {
	flags := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		online, err := s.presence.IsOnline(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("presence lookup failed")
		}
		flags[id] = online
	}
	return flags
}

func (s *Service) announce(chat *store.Chat) {
	s.notify(chat.Participants, core.ChatCreated(chat))
}

func (s *Service) notify(userIDs []string, ev *core.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(userIDs, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Kind.String()).Msg("notification failed")
	}
}
