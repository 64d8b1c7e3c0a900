// Package statuses manages short-lived statuses visible to the author's
// friends, and pushes status:new and status:viewed to live connections.
package statuses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// Common errors for status operations.
var (
	ErrContentRequired = errors.New("content and type are required")
	ErrContentTooLong  = errors.New("content is too long")
	ErrInvalidType     = errors.New("invalid status type")
	ErrMediaRequired   = errors.New("media url is required for image/video statuses")
	ErrStatusNotFound  = errors.New("status not found")
	ErrExpired         = errors.New("status has expired")
	ErrNotFriends      = errors.New("you can only view statuses of your friends")
	ErrNotOwner        = errors.New("you can only delete your own statuses")
)

const (
	// Lifetime is how long a status stays visible.
	Lifetime = 24 * time.Hour
	// MaxContentLength caps status content, in characters.
	MaxContentLength = 500

	defaultBackgroundColor = "#25d366"
	defaultTextColor       = "#ffffff"
	defaultFont            = "Inter"
)

// Store is the persistence the statuses service needs.
type Store interface {
	store.UserStore
	store.StatusStore
}

// Friends answers friendship questions.
type Friends interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	AreFriends(ctx context.Context, userID, otherID string) (bool, error)
}

// Notifier pushes events to the live connections of users.
type Notifier interface {
	Notify(userIDs []string, ev *core.Event) error
}

// CreateParams describes a new status.
type CreateParams struct {
	Content         string
	Type            store.StatusType
	MediaURL        string
	BackgroundColor string
	TextColor       string
	Font            string
}

// UserStatuses groups the live statuses of one user, newest first.
type UserStatuses struct {
	User     *store.User
	Statuses []*store.Status
}

// Service provides status business logic.
type Service struct {
	store    Store
	friends  Friends
	notifier Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a statuses service. notifier may be nil.
func New(st Store, friends Friends, notifier Notifier, logger *zerolog.Logger, opts ...Option) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		store:    st,
		friends:  friends,
		notifier: notifier,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a status for userID and tells their friends.
func (s *Service) Create(ctx context.Context, userID string, p CreateParams) (*store.Status, error) {
	p.Content = strings.TrimSpace(p.Content)
	switch {
	case p.Content == "" || p.Type == "":
		return nil, ErrContentRequired
	case utf8.RuneCountInString(p.Content) > MaxContentLength:
		return nil, ErrContentTooLong
	case !p.Type.Valid():
		return nil, ErrInvalidType
	case p.Type != store.StatusTypeText && p.MediaURL == "":
		return nil, ErrMediaRequired
	}

	author, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get author: %w", err)
	}

	now := s.now()
	st := &store.Status{
		ID:              uuid.NewString(),
		UserID:          userID,
		Content:         p.Content,
		Type:            p.Type,
		MediaURL:        p.MediaURL,
		BackgroundColor: orDefault(p.BackgroundColor, defaultBackgroundColor),
		TextColor:       orDefault(p.TextColor, defaultTextColor),
		Font:            orDefault(p.Font, defaultFont),
		CreatedAt:       now,
		ExpiresAt:       now.Add(Lifetime),
	}
	if err := s.store.CreateStatus(ctx, st); err != nil {
		return nil, fmt.Errorf("create status: %w", err)
	}

	friendIDs, err := s.friends.FriendIDs(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("status fan-out skipped")
		return st, nil
	}
	s.notify(friendIDs, core.StatusPosted(st, core.Sender{ID: author.ID, Username: author.Username, Email: author.Email}))
	return st, nil
}

// Feed returns the live statuses of userID and their friends, grouped per
// user, the user with the most recent status first.
func (s *Service) Feed(ctx context.Context, userID string) ([]UserStatuses, error) {
	friendIDs, err := s.friends.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("friend ids: %w", err)
	}

	list, err := s.store.ListStatuses(ctx, append([]string{userID}, friendIDs...), s.now())
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}

	var groups []UserStatuses
	index := make(map[string]int)
	for _, st := range list {
		i, ok := index[st.UserID]
		if !ok {
			user, err := s.store.GetUserByID(ctx, st.UserID)
			if err != nil {
				s.log.Warn().Err(err).Str("user_id", st.UserID).Msg("status author lookup failed")
				user = &store.User{ID: st.UserID}
			}
			i = len(groups)
			index[st.UserID] = i
			groups = append(groups, UserStatuses{User: user})
		}
		groups[i].Statuses = append(groups[i].Statuses, st)
	}
	return groups, nil
}

// Mine returns userID's own live statuses, newest first.
func (s *Service) Mine(ctx context.Context, userID string) ([]*store.Status, error) {
	list, err := s.store.ListStatuses(ctx, []string{userID}, s.now())
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return list, nil
}

// ForUser returns ownerID's live statuses as seen by viewerID, who must be
// ownerID or one of their friends.
func (s *Service) ForUser(ctx context.Context, viewerID, ownerID string) ([]*store.Status, error) {
	if viewerID != ownerID {
		ok, err := s.friends.AreFriends(ctx, viewerID, ownerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFriends
		}
	}
	return s.Mine(ctx, ownerID)
}

// View records that viewerID saw a status and tells the author the first time.
// Authors viewing their own status leave no mark.
func (s *Service) View(ctx context.Context, viewerID, statusID string) (*store.Status, error) {
	st, err := s.get(ctx, statusID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if st.Expired(now) {
		return nil, ErrExpired
	}
	if st.UserID == viewerID {
		return st, nil
	}

	added, err := s.store.AddStatusView(ctx, statusID, viewerID, now)
	if err != nil {
		return nil, fmt.Errorf("add status view: %w", err)
	}
	if added {
		viewer := core.Sender{ID: viewerID}
		if u, err := s.store.GetUserByID(ctx, viewerID); err == nil {
			viewer.Username = u.Username
			viewer.Email = u.Email
		}
		s.notify([]string{st.UserID}, core.StatusViewed(core.StatusView{StatusID: st.ID, Viewer: viewer, ViewedAt: now}))
	}
	return s.get(ctx, statusID)
}

// Delete removes one of userID's statuses.
func (s *Service) Delete(ctx context.Context, userID, statusID string) error {
	st, err := s.get(ctx, statusID)
	if err != nil {
		return err
	}
	if st.UserID != userID {
		return ErrNotOwner
	}
	if err := s.store.DeleteStatus(ctx, statusID); err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	return nil
}

// Sweep deletes expired statuses.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredStatuses(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep statuses: %w", err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Warn().Err(err).Msg("status sweep failed")
				continue
			}
			if n > 0 {
				s.log.Debug().Int64("removed", n).Msg("expired statuses removed")
			}
		}
	}
}

func (s *Service) get(ctx context.Context, statusID string) (*store.Status, error) {
	st, err := s.store.GetStatus(ctx, statusID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrStatusNotFound
	case err != nil:
		return nil, fmt.Errorf("get status: %w", err)
	}
	return st, nil
}

func (s *Service) notify(userIDs []string, ev *core.Event) {
	if s.notifier == nil || len(userIDs) == 0 {
		return
	}
	if err := s.notifier.Notify(userIDs, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Kind.String()).Msg("status notification failed")
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
