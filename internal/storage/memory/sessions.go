package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = errors.New("session not found")

type sessionEntry struct {
	mu      sync.Mutex
	session *checkout.Session
}

// SessionStore keeps open checkout sessions addressable by id. Access to each
// session is serialised through Do, so concurrent requests for one session
// never interleave.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// Put registers s under its id.
func (st *SessionStore) Put(s *checkout.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.entries[s.ID()] = &sessionEntry{session: s}
}

// Do runs fn with exclusive access to the session id.
func (st *SessionStore) Do(id string, fn func(*checkout.Session) error) error {
	st.mu.RLock()
	e, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Delete forgets the session id. It reports whether it was present.
func (st *SessionStore) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	_, ok := st.entries[id]
	delete(st.entries, id)
	return ok
}

// Len returns the number of stored sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

// Reap cancels open sessions idle for longer than idle and evicts every
// finalized session idle for that long. It returns the number of sessions
// cancelled and evicted.
func (st *SessionStore) Reap(ctx context.Context, idle time.Duration) (cancelled, evicted int) {
	cutoff := st.now().Add(-idle)

	st.mu.RLock()
	ids := make([]string, 0, len(st.entries))
	for id := range st.entries {
		ids = append(ids, id)
	}
	st.mu.RUnlock()

	lg := zctx.From(ctx)
	for _, id := range ids {
		var stale bool
		err := st.Do(id, func(s *checkout.Session) error {
			if s.LastActivity().After(cutoff) {
				return nil
			}
			stale = true
			if s.Status() != checkout.StatusOpen {
				return nil
			}
			if err := s.Cancel(ctx); err != nil {
				return err
			}
			cancelled++
			return nil
		})
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				lg.Warn("Reap session", zap.String("session_id", id), zap.Error(err))
			}
			continue
		}
		if stale && st.Delete(id) {
			evicted++
		}
	}
	return cancelled, evicted
}

// StartReaper launches a goroutine that calls Reap every interval until ctx
// is cancelled.
func (st *SessionStore) StartReaper(ctx context.Context, idle, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cancelled, evicted := st.Reap(ctx, idle)
				if cancelled > 0 || evicted > 0 {
					zctx.From(ctx).Info("Reaped idle sessions",
						zap.Int("cancelled", cancelled),
						zap.Int("evicted", evicted),
					)
				}
			}
		}
	}()
}
