// Package store implements the user and history repositories on top of
// memory, SQLite, MySQL, Badger and DynamoDB backends.
package store

import (
	"encoding/json"
	"time"

	"github.com/mikey/sms-spam-classifier/internal/core"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
)

// Options holds settings shared by every backend.
type Options struct {
	// Retention drops history records older than this. Zero keeps everything.
	Retention time.Duration
	// CleanupFrequency is how often expired history is removed.
	CleanupFrequency time.Duration
}

func (o Options) cleanupEnabled() bool {
	return o.Retention > 0 && o.CleanupFrequency > 0
}

// storedRecord is the serialized form of a history record for key-value backends.
type storedRecord struct {
	ID            string    `json:"id"`
	Identity      string    `json:"identity"`
	Text          string    `json:"text"`
	Transformed   string    `json:"transformed"`
	Steps         nlp.Steps `json:"steps"`
	Prediction    int       `json:"prediction"`
	Label         string    `json:"label"`
	Probabilities []float64 `json:"probabilities"`
	Model         string    `json:"model"`
	CreatedAt     int64     `json:"created_at"`
}

func toStored(r *core.HistoryRecord) storedRecord {
	return storedRecord{
		ID:            r.ID,
		Identity:      r.Identity,
		Text:          r.Text,
		Transformed:   r.Transformed,
		Steps:         r.Steps,
		Prediction:    r.Prediction,
		Label:         r.Label,
		Probabilities: r.Probabilities,
		Model:         r.Model,
		CreatedAt:     r.CreatedAt.UnixNano(),
	}
}

func (s storedRecord) toRecord() core.HistoryRecord {
	return core.HistoryRecord{
		ID:            s.ID,
		Identity:      s.Identity,
		Text:          s.Text,
		Transformed:   s.Transformed,
		Steps:         s.Steps,
		Prediction:    s.Prediction,
		Label:         s.Label,
		Probabilities: s.Probabilities,
		Model:         s.Model,
		CreatedAt:     time.Unix(0, s.CreatedAt).UTC(),
	}
}

type storedUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"`
}

func encodeUser(u *core.User) ([]byte, error) {
	return json.Marshal(storedUser{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UnixNano(),
	})
}

func decodeUser(data []byte) (*core.User, error) {
	var s storedUser
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &core.User{
		ID:           s.ID,
		Email:        s.Email,
		PasswordHash: s.PasswordHash,
		CreatedAt:    time.Unix(0, s.CreatedAt).UTC(),
	}, nil
}

// recordTime returns the record's timestamp, defaulting to now.
func recordTime(r *core.HistoryRecord) time.Time {
	if r.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.CreatedAt
}
