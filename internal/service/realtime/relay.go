package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

type typingKey struct {
	chatID string
	userID string
}

type typingEntry struct {
	timer *time.Timer
	conns map[string]struct{}
}

// typingTimers mirrors the presence store's typing TTL locally so a silent
// expiry can be announced. The store keeps one mark per (chat, user), so the
// timers do too; each entry remembers which of the user's connections typed.
type typingTimers struct {
	mu      sync.Mutex
	entries map[typingKey]*typingEntry
}

func newTypingTimers() *typingTimers {
	return &typingTimers{entries: make(map[typingKey]*typingEntry)}
}

// arm (re)starts the timer for key on behalf of connID. fire runs only if the
// entry is still the current one when the timer goes off.
func (t *typingTimers) arm(key typingKey, connID string, ttl time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &typingEntry{conns: map[string]struct{}{connID: {}}}
	if old, ok := t.entries[key]; ok {
		old.timer.Stop()
		for id := range old.conns {
			entry.conns[id] = struct{}{}
		}
	}
	t.entries[key] = entry
	entry.timer = time.AfterFunc(ttl, func() {
		t.mu.Lock()
		if t.entries[key] != entry {
			t.mu.Unlock()
			return
		}
		delete(t.entries, key)
		t.mu.Unlock()
		fire()
	})
}

// disarm stops the timer for key and reports whether one was pending.
func (t *typingTimers) disarm(key typingKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, key)
	return true
}

// releaseConn forgets connID in every entry of userID. Entries left with no
// typing connection are stopped and their chat ids returned.
func (t *typingTimers) releaseConn(userID, connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var chats []string
	for key, entry := range t.entries {
		if key.userID != userID {
			continue
		}
		delete(entry.conns, connID)
		if len(entry.conns) > 0 {
			continue
		}
		entry.timer.Stop()
		delete(t.entries, key)
		chats = append(chats, key.chatID)
	}
	return chats
}

func (t *typingTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, key)
	}
}

func typingEvent(c *core.Client, chatID string, isTyping bool) *core.Event {
	return core.TypingChanged(core.Typing{
		ChatID:   chatID,
		UserID:   c.UserID,
		Username: c.Username,
		IsTyping: isTyping,
	})
}

// requireJoined rejects typing signals for chats the connection is not subscribed to.
func (s *Service) requireJoined(c *core.Client, command, chatID string) bool {
	if s.hub.InChannel(c, core.ChatChannel(chatID)) {
		return true
	}
	s.replyError(c, command, core.NewError(core.ErrCodeNotParticipant, "join the chat first"))
	return false
}

// TypingStart marks the user as typing for the store TTL and tells the rest
// of the chat. The local timer announces isTyping:false if no refresh or stop
// arrives before the TTL runs out.
func (s *Service) TypingStart(ctx context.Context, c *core.Client, cmd core.TypingStart) error {
	if !s.requireJoined(c, cmd.Name(), cmd.ChatID) {
		return fmt.Errorf("typing in unjoined chat %s", cmd.ChatID)
	}

	if err := callErr(ctx, s, componentPresence, "add_typing", func(ctx context.Context) error {
		return s.presence.AddTyping(ctx, cmd.ChatID, c.UserID)
	}); err != nil {
		s.log.Warn().Err(err).Str("chat_id", cmd.ChatID).Str("user_id", c.UserID).Msg("presence add typing failed")
	}

	s.broadcast(core.ChatChannel(cmd.ChatID), typingEvent(c, cmd.ChatID, true), c)

	chatID := cmd.ChatID
	s.typing.arm(typingKey{chatID: chatID, userID: c.UserID}, c.ID, s.presence.TypingTTL(), func() {
		if !s.opts.TypingExpiryBroadcast {
			return
		}
		s.log.Debug().Str("chat_id", chatID).Str("user_id", c.UserID).Msg("typing expired")
		if err := s.hub.BroadcastRoom(core.ChatChannel(chatID), typingEvent(c, chatID, false), c); err != nil && !errors.Is(err, core.ErrHubNotRunning) {
			s.log.Warn().Err(err).Str("chat_id", chatID).Msg("typing expiry broadcast failed")
		}
	})
	return nil
}

// TypingStop clears the typing mark and tells the rest of the chat.
func (s *Service) TypingStop(ctx context.Context, c *core.Client, cmd core.TypingStop) error {
	if !s.requireJoined(c, cmd.Name(), cmd.ChatID) {
		return fmt.Errorf("typing in unjoined chat %s", cmd.ChatID)
	}

	s.typing.disarm(typingKey{chatID: cmd.ChatID, userID: c.UserID})
	if err := callErr(ctx, s, componentPresence, "remove_typing", func(ctx context.Context) error {
		return s.presence.RemoveTyping(ctx, cmd.ChatID, c.UserID)
	}); err != nil {
		s.log.Warn().Err(err).Str("chat_id", cmd.ChatID).Str("user_id", c.UserID).Msg("presence remove typing failed")
	}

	s.broadcast(core.ChatChannel(cmd.ChatID), typingEvent(c, cmd.ChatID, false), c)
	return nil
}

// clearTyping drops the typing marks a closing connection leaves behind.
// A mark another connection of the same user still holds is kept.
func (s *Service) clearTyping(ctx context.Context, c *core.Client) {
	for _, chatID := range s.typing.releaseConn(c.UserID, c.ID) {
		if err := callErr(ctx, s, componentPresence, "remove_typing", func(ctx context.Context) error {
			return s.presence.RemoveTyping(ctx, chatID, c.UserID)
		}); err != nil {
			s.log.Warn().Err(err).Str("chat_id", chatID).Str("user_id", c.UserID).Msg("presence remove typing failed")
		}
		s.broadcast(core.ChatChannel(chatID), typingEvent(c, chatID, false), c)
	}
}

// ReadMessage records a read receipt once per user and message and announces
// it to the whole chat, reader included. Repeated reads are absorbed silently.
func (s *Service) ReadMessage(ctx context.Context, c *core.Client, cmd core.ReadMessage) error {
	msg, err := call(ctx, s, componentStorage, "get_message", func(ctx context.Context) (*store.Message, error) {
		return s.store.GetMessage(ctx, cmd.MessageID)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.replyError(c, cmd.Name(), core.NewError(core.ErrCodeMessageNotFound, "Message not found"))
		return err
	case err != nil:
		s.reply(c, core.MessageFailed(reasonReadFailed))
		return fmt.Errorf("get message: %w", err)
	case msg.ChatID != cmd.ChatID:
		s.replyError(c, cmd.Name(), core.NewError(core.ErrCodeBadRequest, "message does not belong to chat"))
		return fmt.Errorf("message %s is not in chat %s", msg.ID, cmd.ChatID)
	}

	if _, cerr, err := s.loadChat(ctx, c, cmd.ChatID); cerr != nil {
		if cerr.Code == core.ErrCodePersistenceFailure {
			s.reply(c, core.MessageFailed(reasonReadFailed))
		} else {
			s.replyError(c, cmd.Name(), cerr)
		}
		return err
	}

	readAt := s.now()
	added, err := call(ctx, s, componentStorage, "add_read", func(ctx context.Context) (bool, error) {
		return s.store.AddRead(ctx, msg.ID, c.UserID, readAt)
	})
	if err != nil {
		s.reply(c, core.MessageFailed(reasonReadFailed))
		return fmt.Errorf("add read: %w", err)
	}
	if !added {
		return nil
	}

	s.broadcast(core.ChatChannel(cmd.ChatID), core.MessageRead(core.ReadReceipt{
		MessageID: msg.ID,
		ChatID:    cmd.ChatID,
		UserID:    c.UserID,
		ReadAt:    readAt,
	}), nil)
	return nil
}
