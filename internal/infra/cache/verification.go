package cache

import (
	"context"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"bookingengine/internal/app/services/verification"
)

// VerificationStore keeps verification sessions until their TTL runs out.
type VerificationStore struct {
	mu    sync.Mutex
	cache *ccache.Cache[verification.Session]
	ttl   time.Duration
}

func NewVerificationStore(ttl time.Duration, maxSize int64) *VerificationStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &VerificationStore{
		cache: ccache.New(ccache.Configure[verification.Session]().MaxSize(maxSize)),
		ttl:   ttl,
	}
}

func (s *VerificationStore) Put(_ context.Context, sess verification.Session) error {
	s.cache.Set(sess.State, sess, s.ttl)
	return nil
}

func (s *VerificationStore) Get(_ context.Context, state string) (verification.Session, bool, error) {
	item := s.cache.Get(state)
	if item == nil || item.Expired() {
		return verification.Session{}, false, nil
	}
	return item.Value(), true, nil
}

// Update keeps the session's original expiry.
func (s *VerificationStore) Update(_ context.Context, state string, fn func(*verification.Session)) (verification.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.cache.Get(state)
	if item == nil || item.Expired() {
		return verification.Session{}, false, nil
	}
	sess := item.Value()
	data := make(map[string]any, len(sess.Data))
	for k, v := range sess.Data {
		data[k] = v
	}
	sess.Data = data
	fn(&sess)
	if !s.cache.Replace(state, sess) {
		return verification.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *VerificationStore) Stop() {
	s.cache.Stop()
}

var _ verification.Store = (*VerificationStore)(nil)
