package cache

import (
	"context"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
)

// Inbox remembers consumed event ids for a bounded time.
type Inbox struct {
	mu    sync.Mutex
	cache *ccache.Cache[time.Time]
	ttl   time.Duration
}

func NewInbox(ttl time.Duration) *Inbox {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Inbox{cache: ccache.New(ccache.Configure[time.Time]().MaxSize(100000)), ttl: ttl}
}

func (i *Inbox) Seen(_ context.Context, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if item := i.cache.Get(eventID); item != nil && !item.Expired() {
		return true, nil
	}
	i.cache.Set(eventID, time.Now().UTC(), i.ttl)
	return false, nil
}

func (i *Inbox) Forget(_ context.Context, eventID string) error {
	i.cache.Delete(eventID)
	return nil
}

func (i *Inbox) Stop() {
	i.cache.Stop()
}
