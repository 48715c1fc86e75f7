// Package verification tracks identity-verification handshakes between the
// redirect that starts them and the provider callback that completes them.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookingengine/internal/domain/shared/failure"
)

var (
	ErrSessionNotFound  = failure.NotFound("VERIFICATION_NOT_FOUND", "verification session not found or expired")
	ErrTransactionID    = failure.Validation("TRANSACTION_REQUIRED", "transaction id is required")
	ErrNotSessionOwner  = failure.Forbidden("FORBIDDEN", "verification session belongs to another user")
	ErrStoreUnavailable = errors.New("verification: store not configured")
)

type Session struct {
	State         string         `json:"state"`
	UserID        string         `json:"user_id"`
	TransactionID string         `json:"transaction_id"`
	Data          map[string]any `json:"data,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (s Session) clone() Session {
	cp := s
	cp.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		cp.Data[k] = v
	}
	return cp
}

// Store keeps sessions for a bounded time; expired sessions are gone.
type Store interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, state string) (Session, bool, error)
	// Update applies fn atomically to an existing session.
	Update(ctx context.Context, state string, fn func(*Session)) (Session, bool, error)
}

type Service struct {
	Store  Store
	Now    func() time.Time
	Logger *slog.Logger
}

func (s *Service) Start(ctx context.Context, userID, transactionID string, data map[string]any) (Session, error) {
	if s.Store == nil {
		return Session{}, ErrStoreUnavailable
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return Session{}, ErrTransactionID
	}
	now := s.now()
	sess := Session{
		State:         uuid.NewString(),
		UserID:        userID,
		TransactionID: transactionID,
		Data:          data,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	sess = sess.clone()
	if err := s.Store.Put(ctx, sess); err != nil {
		return Session{}, err
	}
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "verification started", "user_id", userID, "transaction_id", transactionID)
	}
	return sess, nil
}

// Get returns the session to its owner.
func (s *Service) Get(ctx context.Context, userID, state string) (Session, error) {
	if s.Store == nil {
		return Session{}, ErrStoreUnavailable
	}
	sess, ok, err := s.Store.Get(ctx, state)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if sess.UserID != userID {
		return Session{}, ErrNotSessionOwner
	}
	return sess, nil
}

// Complete merges the provider callback payload into the session.
func (s *Service) Complete(ctx context.Context, state string, patch map[string]any) (Session, error) {
	if s.Store == nil {
		return Session{}, ErrStoreUnavailable
	}
	now := s.now()
	sess, ok, err := s.Store.Update(ctx, state, func(cur *Session) {
		if cur.Data == nil {
			cur.Data = map[string]any{}
		}
		for k, v := range patch {
			cur.Data[k] = v
		}
		cur.UpdatedAt = now
	})
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
