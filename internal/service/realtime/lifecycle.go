package realtime

import (
	"context"
	"fmt"

	"github.com/vovakirdan/flowchat-server/internal/config"
	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/observability"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// Connect brings an authenticated connection online: registers it, marks
// presence, joins the personal channel and one channel per chat the user is
// in, then announces user:online if this is the user's first connection.
//
// On error the connection is fully torn down and must be closed.
func (s *Service) Connect(ctx context.Context, c *core.Client) error {
	ctx, span := s.tracer.Start(ctx, "connection.connect")
	var err error
	defer func() { observability.End(span, err) }()

	log := s.clientLog(c)

	if err = s.hub.Register(c); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	s.track(c)

	becameOnline, perr := call(ctx, s, componentPresence, "set_online", func(ctx context.Context) (bool, error) {
		return s.presence.SetOnline(ctx, c.UserID, c.ID)
	})
	if perr != nil {
		log.Warn().Err(perr).Msg("presence set online failed")
	}

	if _, err = s.hub.Join(c, core.UserChannel(c.UserID)); err != nil {
		s.Disconnect(ctx, c)
		return fmt.Errorf("join personal channel: %w", err)
	}

	chats, err := call(ctx, s, componentStorage, "list_chats", func(ctx context.Context) ([]*store.Chat, error) {
		return s.store.ListChatsForUser(ctx, c.UserID)
	})
	if err != nil {
		log.Error().Err(err).Msg("list chats on connect failed")
		s.Disconnect(ctx, c)
		return fmt.Errorf("list chats: %w", err)
	}

	channels := make([]string, 0, len(chats))
	for _, chat := range chats {
		channel := core.ChatChannel(chat.ID)
		if _, err = s.hub.Join(c, channel); err != nil {
			s.Disconnect(ctx, c)
			return fmt.Errorf("join %s: %w", channel, err)
		}
		channels = append(channels, channel)
	}

	log.Info().Int("chats", len(chats)).Bool("first_connection", becameOnline).Msg("connection online")

	if becameOnline {
		s.metrics.UserOnline()
		s.announce(core.UserOnline(c.UserID), channels, c)
	}
	return nil
}

// Disconnect tears a connection down: clears its typing marks, removes it from
// every channel, updates presence and announces user:offline when the user's
// last connection closed. Only the first call for a connection has effect,
// and it still runs after the hub has shut down.
func (s *Service) Disconnect(ctx context.Context, c *core.Client) {
	if !s.claim(c) {
		return
	}
	defer s.finish(c)

	// The connection context is usually already cancelled here.
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "connection.disconnect")
	defer span.End()

	log := s.clientLog(c)

	s.clearTyping(ctx, c)

	var chatChannels []string
	for _, channel := range s.hub.Channels(c) {
		if _, ok := core.ChatIDFromChannel(channel); ok {
			chatChannels = append(chatChannels, channel)
		}
	}
	s.hub.Unregister(c)

	becameOffline, err := call(ctx, s, componentPresence, "set_offline", func(ctx context.Context) (bool, error) {
		return s.presence.SetOffline(ctx, c.UserID, c.ID)
	})
	if err != nil {
		log.Warn().Err(err).Msg("presence set offline failed")
		return
	}

	log.Info().Bool("last_connection", becameOffline).Msg("connection closed")

	if becameOffline {
		s.metrics.UserOffline()
		s.announce(core.UserOffline(c.UserID), chatChannels, nil)
	}
}

// announce sends a presence change either to every connection or only to
// connections sharing one of the given chat channels.
func (s *Service) announce(ev *core.Event, chatChannels []string, except *core.Client) {
	var err error
	if s.opts.BroadcastScope == config.BroadcastScopeChats {
		err = s.hub.BroadcastRooms(chatChannels, ev, except)
	} else {
		err = s.hub.BroadcastAll(ev, except)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("event", ev.Kind.String()).Str("user_id", ev.UserID).Msg("presence broadcast failed")
	}
}
