// Package friends manages friendship records: requests, answers and blocks.
// Accepted friendships decide who sees whose statuses.
package friends

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/flowchat-server/internal/store"
)

// Common errors for friend operations.
var (
	ErrCannotFriendSelf     = errors.New("cannot send friend request to yourself")
	ErrAlreadyFriends       = errors.New("already friends")
	ErrRequestAlreadyExists = errors.New("friend request already exists")
	ErrRequestNotFound      = errors.New("friend request not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrBlocked              = errors.New("friendship is blocked")
	ErrNotBlocked           = errors.New("user is not blocked")
)

// Store is the persistence the friends service needs.
type Store interface {
	store.UserStore
	store.FriendStore
}

// Service provides friend management business logic.
type Service struct {
	store Store
}

// New creates a new friends service.
func New(st Store) *Service {
	return &Service{store: st}
}

// SendRequest sends a friend request from one user to another. A pending
// request in the other direction is accepted instead.
func (s *Service) SendRequest(ctx context.Context, fromUserID, toUserID string) (*store.Friend, error) {
	if fromUserID == toUserID {
		return nil, ErrCannotFriendSelf
	}
	if err := s.requireUser(ctx, toUserID); err != nil {
		return nil, err
	}

	existing, err := s.store.GetFriendship(ctx, fromUserID, toUserID)
	switch {
	case err == nil:
		switch existing.Status {
		case store.FriendStatusAccepted:
			return nil, ErrAlreadyFriends
		case store.FriendStatusBlocked:
			return nil, ErrBlocked
		}
		if existing.RequesterID == fromUserID {
			return nil, ErrRequestAlreadyExists
		}
		if err := s.store.UpdateFriendStatus(ctx, toUserID, fromUserID, store.FriendStatusAccepted); err != nil {
			return nil, fmt.Errorf("accept crossed request: %w", err)
		}
		existing.Status = store.FriendStatusAccepted
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("get friendship: %w", err)
	}

	friend, err := s.store.CreateFriendRequest(ctx, fromUserID, toUserID)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrRequestAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("create friend request: %w", err)
	}
	return friend, nil
}

// pendingTo returns the pending request fromUserID sent to userID.
func (s *Service) pendingTo(ctx context.Context, userID, fromUserID string) (*store.Friend, error) {
	existing, err := s.store.GetFriendship(ctx, fromUserID, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrRequestNotFound
	case err != nil:
		return nil, fmt.Errorf("get friendship: %w", err)
	}
	if existing.Status != store.FriendStatusPending || existing.RecipientID != userID {
		return nil, ErrRequestNotFound
	}
	return existing, nil
}

// AcceptRequest accepts a pending friend request sent to userID.
func (s *Service) AcceptRequest(ctx context.Context, userID, fromUserID string) error {
	existing, err := s.pendingTo(ctx, userID, fromUserID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateFriendStatus(ctx, existing.RequesterID, existing.RecipientID, store.FriendStatusAccepted); err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	return nil
}

// RejectRequest drops a pending friend request sent to userID.
func (s *Service) RejectRequest(ctx context.Context, userID, fromUserID string) error {
	existing, err := s.pendingTo(ctx, userID, fromUserID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFriendship(ctx, existing.RequesterID, existing.RecipientID); err != nil {
		return fmt.Errorf("reject request: %w", err)
	}
	return nil
}

// Remove ends an accepted friendship from either side.
func (s *Service) Remove(ctx context.Context, userID, friendID string) error {
	existing, err := s.store.GetFriendship(ctx, userID, friendID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrRequestNotFound
	case err != nil:
		return fmt.Errorf("get friendship: %w", err)
	}
	if existing.Status != store.FriendStatusAccepted {
		return ErrRequestNotFound
	}
	return s.store.DeleteFriendship(ctx, existing.RequesterID, existing.RecipientID)
}

// BlockUser blocks another user, replacing any record between the two.
func (s *Service) BlockUser(ctx context.Context, userID, targetUserID string) error {
	if userID == targetUserID {
		return ErrCannotFriendSelf
	}
	if err := s.requireUser(ctx, targetUserID); err != nil {
		return err
	}

	existing, err := s.store.GetFriendship(ctx, userID, targetUserID)
	switch {
	case err == nil:
		if existing.RequesterID == userID {
			return s.store.UpdateFriendStatus(ctx, userID, targetUserID, store.FriendStatusBlocked)
		}
		if existing.Status == store.FriendStatusBlocked {
			return ErrBlocked
		}
		if err := s.store.DeleteFriendship(ctx, existing.RequesterID, existing.RecipientID); err != nil {
			return fmt.Errorf("delete existing friendship: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("get friendship: %w", err)
	}

	if _, err := s.store.CreateFriendRequest(ctx, userID, targetUserID); err != nil {
		return fmt.Errorf("create block record: %w", err)
	}
	return s.store.UpdateFriendStatus(ctx, userID, targetUserID, store.FriendStatusBlocked)
}

// UnblockUser lifts a block userID placed.
func (s *Service) UnblockUser(ctx context.Context, userID, targetUserID string) error {
	existing, err := s.store.GetFriendship(ctx, userID, targetUserID)
	if err != nil {
		return ErrNotBlocked
	}
	if existing.Status != store.FriendStatusBlocked || existing.RequesterID != userID {
		return ErrNotBlocked
	}
	return s.store.DeleteFriendship(ctx, userID, targetUserID)
}

// ListFriends returns all accepted friendships of a user.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]*store.Friend, error) {
	friends, err := s.store.ListFriendships(ctx, userID, store.FriendStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

// ListPendingRequests returns incoming pending friend requests for a user.
func (s *Service) ListPendingRequests(ctx context.Context, userID string) ([]*store.Friend, error) {
	all, err := s.store.ListFriendships(ctx, userID, store.FriendStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}

	var incoming []*store.Friend
	for _, f := range all {
		if f.RecipientID == userID {
			incoming = append(incoming, f)
		}
	}
	return incoming, nil
}

// FriendIDs returns the ids of a user's accepted friends.
func (s *Service) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.store.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("friend ids: %w", err)
	}
	return ids, nil
}

// AreFriends reports whether two users have an accepted friendship.
func (s *Service) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	existing, err := s.store.GetFriendship(ctx, userID, otherID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get friendship: %w", err)
	}
	return existing.Status == store.FriendStatusAccepted, nil
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
