package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/core"
)

const (
	userPrefix    = "user:"
	historyPrefix = "hist:"
	sequenceKey   = "seq:hist"
)

// BadgerStore implements core.Store on an embedded Badger database.
//
// History keys are "hist:<identity>:<nanos>:<seq>". The zero padded
// timestamp and sequence keep a reverse prefix scan newest first, with the
// later append winning when two records share a timestamp.
type BadgerStore struct {
	db      *badger.DB
	seq     *badger.Sequence
	logger  *zap.Logger
	opts    Options
	cleaner *cleaner
}

// NewBadgerStore opens a Badger database at path. An empty path keeps
// everything in memory.
func NewBadgerStore(path string, logger *zap.Logger, opts Options) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger database: %w", err)
	}
	return newBadgerStore(db, logger, opts)
}

func newBadgerStore(db *badger.DB, logger *zap.Logger, opts Options) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to allocate history sequence: %w", err)
	}

	s := &BadgerStore{
		db:      db,
		seq:     seq,
		logger:  logger,
		opts:    opts,
		cleaner: newCleaner(logger),
	}
	if opts.cleanupEnabled() {
		s.cleaner.start(opts.CleanupFrequency, s.Cleanup)
	}
	return s, nil
}

// CreateUser stores a user unless the email is taken
func (s *BadgerStore) CreateUser(_ context.Context, user *core.User) error {
	data, err := encodeUser(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(userPrefix + user.Email)
		if _, err := txn.Get(key); err == nil {
			return core.ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// GetUser returns the user for email
func (s *BadgerStore) GetUser(_ context.Context, email string) (*core.User, error) {
	var user *core.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			user, err = decodeUser(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Append stores a history record
func (s *BadgerStore) Append(_ context.Context, record *core.HistoryRecord) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate history key: %w", err)
	}

	r := *record
	r.CreatedAt = recordTime(record)
	data, err := json.Marshal(toStored(&r))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	key := fmt.Sprintf("%s%s:%019d:%019d", historyPrefix, r.Identity, r.CreatedAt.UnixNano(), n)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// ListFor returns the newest records for identity
func (s *BadgerStore) ListFor(_ context.Context, identity string, limit int) ([]core.HistoryRecord, error) {
	if limit <= 0 {
		return []core.HistoryRecord{}, nil
	}
	records := []core.HistoryRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(historyPrefix + identity + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts at the largest key under the prefix.
		seekKey := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(records) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var stored storedRecord
				if err := json.Unmarshal(val, &stored); err != nil {
					return err
				}
				records = append(records, stored.toRecord())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Cleanup removes history older than the retention period
func (s *BadgerStore) Cleanup(_ context.Context) (int64, error) {
	if s.opts.Retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.opts.Retention).UnixNano()

	var expired [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(historyPrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if nanos, ok := historyKeyTime(string(key)); ok && nanos < cutoff {
				expired = append(expired, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range expired {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to delete expired history: %w", err)
	}
	return int64(len(expired)), nil
}

// historyKeyTime extracts the timestamp from a history key. Identities may
// contain colons, so the fields are read from the end.
func historyKeyTime(key string) (int64, bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return 0, false
	}
	nanos, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return 0, false
	}
	return nanos, true
}

// Ping checks that the database is open
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close stops the background cleanup task and closes the database
func (s *BadgerStore) Close() error {
	s.cleaner.stop(s.opts.cleanupEnabled())
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("Failed to release history sequence", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close Badger database", zap.Error(err))
		return err
	}
	return nil
}
