package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/core"
)

// dialect captures what differs between SQL backends.
type dialect struct {
	name        string
	schema      []string
	isDuplicate func(error) bool
}

// SQLStore implements core.Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
	opts    Options
	cleaner *cleaner
}

func newSQLStore(db *sql.DB, d dialect, logger *zap.Logger, opts Options) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}

	s := &SQLStore{
		db:      db,
		dialect: d,
		logger:  logger,
		opts:    opts,
		cleaner: newCleaner(logger),
	}
	if opts.cleanupEnabled() {
		s.cleaner.start(opts.CleanupFrequency, s.Cleanup)
	}
	return s, nil
}

// CreateUser inserts a user, mapping a key violation to core.ErrUserExists
func (s *SQLStore) CreateUser(ctx context.Context, user *core.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, id, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, user.Email, user.ID, user.PasswordHash, user.CreatedAt.UnixNano())
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return core.ErrUserExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser looks a user up by email
func (s *SQLStore) GetUser(ctx context.Context, email string) (*core.User, error) {
	var user core.User
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT email, id, password_hash, created_at
		FROM users
		WHERE email = ?
	`, email).Scan(&user.Email, &user.ID, &user.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return &user, nil
}

// Append inserts a history record
func (s *SQLStore) Append(ctx context.Context, record *core.HistoryRecord) error {
	steps, err := json.Marshal(record.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	probabilities, err := json.Marshal(record.Probabilities)
	if err != nil {
		return fmt.Errorf("failed to encode probabilities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions
			(id, user_email, text, transformed, steps, prediction, label, probabilities, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.Identity, record.Text, record.Transformed, string(steps),
		record.Prediction, record.Label, string(probabilities), record.Model, recordTime(record).UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// ListFor returns the newest records for identity
func (s *SQLStore) ListFor(ctx context.Context, identity string, limit int) ([]core.HistoryRecord, error) {
	if limit <= 0 {
		return []core.HistoryRecord{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, text, transformed, steps, prediction, label, probabilities, model, created_at
		FROM predictions
		WHERE user_email = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	records := []core.HistoryRecord{}
	for rows.Next() {
		var r core.HistoryRecord
		var steps, probabilities string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Identity, &r.Text, &r.Transformed, &steps,
			&r.Prediction, &r.Label, &probabilities, &r.Model, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps: %w", err)
		}
		if err := json.Unmarshal([]byte(probabilities), &r.Probabilities); err != nil {
			return nil, fmt.Errorf("failed to decode probabilities: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return records, nil
}

// Cleanup removes history older than the retention period
func (s *SQLStore) Cleanup(ctx context.Context) (int64, error) {
	if s.opts.Retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.opts.Retention).UnixNano()
	result, err := s.db.ExecContext(ctx, `DELETE FROM predictions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired predictions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
		return 0, nil
	}
	return rowsAffected, nil
}

// Ping verifies the connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the background cleanup task and closes the database connection
func (s *SQLStore) Close() error {
	s.cleaner.stop(s.opts.cleanupEnabled())
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.String("backend", s.dialect.name), zap.Error(err))
		return err
	}
	return nil
}
