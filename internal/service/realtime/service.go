// Package realtime implements the live side of chat: connection lifecycle,
// message routing with delivery bookkeeping, and the typing/read relay.
//
// Every command from one connection is handled on that connection's read
// goroutine, so per-connection order is the order the transport delivered.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/config"
	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/metrics"
	"github.com/vovakirdan/flowchat-server/internal/observability"
	"github.com/vovakirdan/flowchat-server/internal/presence"
	"github.com/vovakirdan/flowchat-server/internal/retry"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// User-facing failure texts carried by message:error.
const (
	reasonSendFailed     = "Failed to send message"
	reasonReadFailed     = "Failed to mark message as read"
	reasonChatNotFound   = "Chat not found"
	reasonNotParticipant = "You are not a participant of this chat"
)

// Options tunes the realtime behavior.
type Options struct {
	// BroadcastScope is config.BroadcastScopeGlobal or config.BroadcastScopeChats.
	BroadcastScope string
	// TypingExpiryBroadcast emits isTyping:false when a typing entry lapses silently.
	TypingExpiryBroadcast bool
	// Retry bounds every storage and presence call.
	Retry retry.Policy
}

// OptionsFromConfig maps server configuration onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BroadcastScope:        cfg.Presence.BroadcastScope,
		TypingExpiryBroadcast: cfg.Presence.TypingExpiryBroadcast,
		Retry: retry.Policy{
			Attempts: cfg.RetryAttempts,
			Delay:    cfg.RetryDelay,
			Timeout:  cfg.OperationTimeout,
		},
	}
}

// Deps are the collaborators of the service. Logger, Metrics and Tracer may be nil.
type Deps struct {
	Hub      *core.Hub
	Store    store.Store
	Presence presence.Store
	Logger   *zerolog.Logger
	Metrics  *metrics.Metrics
	Tracer   *observability.Tracer
}

// Service is the realtime messaging layer. It implements core.CommandHandler.
type Service struct {
	hub      *core.Hub
	store    store.Store
	presence presence.Store
	log      *zerolog.Logger
	metrics  *metrics.Metrics
	tracer   *observability.Tracer

	opts   Options
	now    func() time.Time
	typing *typingTimers

	mu sync.Mutex
	// sessions maps each connected client to whether Disconnect has started.
	sessions map[*core.Client]bool
	idle     chan struct{}
}

// New creates the service.
func New(deps Deps, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.BroadcastScope == "" {
		opts.BroadcastScope = config.BroadcastScopeGlobal
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Service{
		hub:      deps.Hub,
		store:    deps.Store,
		presence: deps.Presence,
		log:      logger,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		typing:   newTypingTimers(),
		sessions: make(map[*core.Client]bool),
	}
}

// track records a registered connection until Disconnect finishes with it.
func (s *Service) track(c *core.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[c]; !ok {
		s.sessions[c] = false
	}
}

// claim marks c as disconnecting. Only the first call for a tracked
// connection returns true.
func (s *Service) claim(c *core.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	leaving, ok := s.sessions[c]
	if !ok || leaving {
		return false
	}
	s.sessions[c] = true
	return true
}

func (s *Service) finish(c *core.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, c)
	if len(s.sessions) == 0 && s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

// Stats is a snapshot of the live connection layer.
type Stats struct {
	Running     bool
	Connections int
	Sessions    int
}

// Stats reports whether the hub accepts traffic and how many connections it holds.
func (s *Service) Stats() Stats {
	return Stats{
		Running:     s.hub.Running(),
		Connections: s.hub.ClientCount(),
		Sessions:    s.Sessions(),
	}
}

// Sessions is the number of connections between Connect and the end of
// their Disconnect.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Drain waits until every connected session has finished Disconnect, so
// presence is settled before its store closes. It gives up when ctx ends.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.Lock()
	if len(s.sessions) == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops pending typing timers.
func (s *Service) Close() {
	s.typing.stopAll()
}

const (
	componentStorage  = "storage"
	componentPresence = "presence"
)

// call runs a collaborator operation under the retry policy. Missing records
// are not retried.
func call[T any](ctx context.Context, s *Service, component, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := retry.DoValue(ctx, s.opts.Retry, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return v, retry.Permanent(err)
		}
		return v, err
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.metrics.CollaboratorFailed(component, op)
	}
	return v, err
}

func callErr(ctx context.Context, s *Service, component, op string, fn func(ctx context.Context) error) error {
	_, err := call(ctx, s, component, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// reply sends an event to the acting connection only.
func (s *Service) reply(c *core.Client, ev *core.Event) {
	if err := s.hub.Send(c, ev); err != nil {
		s.log.Debug().Err(err).Str("conn_id", c.ID).Str("event", ev.Kind.String()).Msg("reply not sent")
	}
}

func (s *Service) replyError(c *core.Client, command string, cerr *core.CoreError) {
	s.reply(c, core.ErrorEvent(command, cerr))
}

func (s *Service) broadcast(channel string, ev *core.Event, except *core.Client) {
	if err := s.hub.BroadcastRoom(channel, ev, except); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Str("event", ev.Kind.String()).Msg("broadcast failed")
	}
}

func (s *Service) clientLog(c *core.Client) zerolog.Logger {
	return s.log.With().Str("conn_id", c.ID).Str("user_id", c.UserID).Logger()
}
