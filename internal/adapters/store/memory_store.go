package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/core"
)

// MemoryStore is an in-memory implementation of core.Store
type MemoryStore struct {
	users   map[string]core.User
	history map[string][]core.HistoryRecord
	mu      sync.RWMutex
	logger  *zap.Logger
	opts    Options
	cleaner *cleaner
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger, opts Options) *MemoryStore {
	s := &MemoryStore{
		users:   make(map[string]core.User),
		history: make(map[string][]core.HistoryRecord),
		logger:  logger,
		opts:    opts,
		cleaner: newCleaner(logger),
	}

	if opts.cleanupEnabled() {
		s.cleaner.start(opts.CleanupFrequency, s.Cleanup)
	}

	return s
}

// CreateUser stores a user unless the email is taken
func (s *MemoryStore) CreateUser(_ context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Email]; ok {
		return core.ErrUserExists
	}
	s.users[user.Email] = *user
	return nil
}

// GetUser returns the user for email
func (s *MemoryStore) GetUser(_ context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return &user, nil
}

// Append stores a history record
func (s *MemoryStore) Append(_ context.Context, record *core.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *record
	r.CreatedAt = recordTime(record)
	s.history[r.Identity] = append(s.history[r.Identity], r)
	return nil
}

// ListFor returns the newest records for identity
func (s *MemoryStore) ListFor(_ context.Context, identity string, limit int) ([]core.HistoryRecord, error) {
	if limit <= 0 {
		return []core.HistoryRecord{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[identity]
	out := make([]core.HistoryRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
	}
	// Later appends win ties.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cleanup removes history older than the retention period
func (s *MemoryStore) Cleanup(_ context.Context) (int64, error) {
	if s.opts.Retention <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.opts.Retention)
	var expired int64
	for identity, records := range s.history {
		kept := records[:0]
		for _, r := range records {
			if r.CreatedAt.Before(cutoff) {
				expired++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.history, identity)
		} else {
			s.history[identity] = kept
		}
	}
	return expired, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close stops the background cleanup task
func (s *MemoryStore) Close() error {
	s.cleaner.stop(s.opts.cleanupEnabled())
	return nil
}
