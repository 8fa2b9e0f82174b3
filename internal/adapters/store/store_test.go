package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/core"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
)

type backend struct {
	name string
	open func(t *testing.T, opts Options) core.Store
	// ordered reports whether records sharing a timestamp come back in
	// reverse append order.
	ordered bool
}

func backends() []backend {
	list := []backend{
		{
			name: "memory",
			open: func(t *testing.T, opts Options) core.Store {
				return NewMemoryStore(zap.NewNop(), opts)
			},
			ordered: true,
		},
		{
			name: "sqlite",
			open: func(t *testing.T, opts Options) core.Store {
				s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), zap.NewNop(), opts)
				require.NoError(t, err)
				return s
			},
			ordered: true,
		},
		{
			name: "badger",
			open: func(t *testing.T, opts Options) core.Store {
				s, err := NewBadgerStore(t.TempDir(), zap.NewNop(), opts)
				require.NoError(t, err)
				return s
			},
			ordered: true,
		},
		{
			name: "badger-in-memory",
			open: func(t *testing.T, opts Options) core.Store {
				s, err := NewBadgerStore("", zap.NewNop(), opts)
				require.NoError(t, err)
				return s
			},
			ordered: true,
		},
		{
			name: "dynamodb",
			open: func(t *testing.T, opts Options) core.Store {
				s, err := newDynamoDBStore(newFakeDynamo(), "predictions", zap.NewNop(), opts)
				require.NoError(t, err)
				return s
			},
		},
	}

	if dsn := os.Getenv("SMS_SPAM_TEST_MYSQL_DSN"); dsn != "" {
		list = append(list, backend{
			name: "mysql",
			open: func(t *testing.T, opts Options) core.Store {
				s, err := NewMySQLStore(dsn, zap.NewNop(), opts)
				require.NoError(t, err)
				_, err = s.db.Exec("DELETE FROM predictions")
				require.NoError(t, err)
				_, err = s.db.Exec("DELETE FROM users")
				require.NoError(t, err)
				return s
			},
			ordered: true,
		})
	}
	return list
}

func record(id, identity string, at time.Time) *core.HistoryRecord {
	return &core.HistoryRecord{
		ID:          id,
		Identity:    identity,
		Text:        "Free entry " + id,
		Transformed: "free entri",
		Steps: nlp.Steps{
			Raw:            "Free entry " + id,
			Lower:          "free entry " + id,
			Tokens:         []string{"free", "entry", id},
			TokensAlpha:    []string{"free", "entry"},
			AfterStop:      []string{"free", "entry"},
			AfterLemmatize: []string{"free", "entry"},
			AfterStem:      []string{"free", "entri"},
			Transformed:    "free entri",
		},
		Prediction:    1,
		Label:         core.LabelSpam,
		Probabilities: []float64{0.25, 0.75},
		Model:         "default",
		CreatedAt:     at,
	}
}

func ids(records []core.HistoryRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestStoreUsers(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			r := require.New(t)
			ctx := context.Background()
			s := b.open(t, Options{})
			defer s.Close()

			created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			user := &core.User{ID: "u-1", Email: "alice@example.com", PasswordHash: "hash", CreatedAt: created}
			r.NoError(s.CreateUser(ctx, user))

			got, err := s.GetUser(ctx, "alice@example.com")
			r.NoError(err)
			r.Equal("u-1", got.ID)
			r.Equal("alice@example.com", got.Email)
			r.Equal("hash", got.PasswordHash)
			r.True(created.Equal(got.CreatedAt))

			err = s.CreateUser(ctx, &core.User{ID: "u-2", Email: "alice@example.com", PasswordHash: "other"})
			r.ErrorIs(err, core.ErrUserExists)

			got, err = s.GetUser(ctx, "alice@example.com")
			r.NoError(err)
			r.Equal("hash", got.PasswordHash)

			_, err = s.GetUser(ctx, "bob@example.com")
			r.ErrorIs(err, core.ErrUserNotFound)
		})
	}
}

func TestStoreHistory(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			r := require.New(t)
			ctx := context.Background()
			s := b.open(t, Options{})
			defer s.Close()

			base := time.Now().UTC().Truncate(time.Second)
			r.NoError(s.Append(ctx, record("a", "alice@example.com", base)))
			r.NoError(s.Append(ctx, record("b", "alice@example.com", base.Add(2*time.Second))))
			r.NoError(s.Append(ctx, record("c", "alice@example.com", base.Add(time.Second))))
			r.NoError(s.Append(ctx, record("x", "bob@example.com", base)))

			got, err := s.ListFor(ctx, "alice@example.com", 10)
			r.NoError(err)
			r.Equal([]string{"b", "c", "a"}, ids(got))

			got, err = s.ListFor(ctx, "alice@example.com", 2)
			r.NoError(err)
			r.Equal([]string{"b", "c"}, ids(got))

			want := record("b", "alice@example.com", base.Add(2*time.Second))
			r.True(want.CreatedAt.Equal(got[0].CreatedAt))
			got[0].CreatedAt = want.CreatedAt
			r.Equal(*want, got[0])

			got, err = s.ListFor(ctx, "carol@example.com", 10)
			r.NoError(err)
			r.NotNil(got)
			r.Empty(got)

			r.NoError(s.Ping(ctx))
		})
	}
}

func TestStoreHistoryTies(t *testing.T) {
	for _, b := range backends() {
		if !b.ordered {
			continue
		}
		t.Run(b.name, func(t *testing.T) {
			r := require.New(t)
			ctx := context.Background()
			s := b.open(t, Options{})
			defer s.Close()

			at := time.Now().UTC()
			for _, id := range []string{"first", "second", "third"} {
				r.NoError(s.Append(ctx, record(id, "alice@example.com", at)))
			}

			got, err := s.ListFor(ctx, "alice@example.com", 10)
			r.NoError(err)
			r.Equal([]string{"third", "second", "first"}, ids(got))
		})
	}
}

func TestStoreAppendDefaultsTimestamp(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			r := require.New(t)
			ctx := context.Background()
			s := b.open(t, Options{})
			defer s.Close()

			rec := record("a", "alice@example.com", time.Time{})
			r.NoError(s.Append(ctx, rec))

			got, err := s.ListFor(ctx, "alice@example.com", 1)
			r.NoError(err)
			r.Len(got, 1)
			r.WithinDuration(time.Now(), got[0].CreatedAt, time.Minute)
		})
	}
}

type cleanable interface {
	Cleanup(ctx context.Context) (int64, error)
}

func TestStoreCleanupRemovesExpiredHistory(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			r := require.New(t)
			ctx := context.Background()
			s := b.open(t, Options{Retention: time.Hour})
			defer s.Close()

			now := time.Now().UTC()
			r.NoError(s.Append(ctx, record("old", "alice@example.com", now.Add(-2*time.Hour))))
			r.NoError(s.Append(ctx, record("new", "alice@example.com", now.Add(-time.Minute))))

			if c, ok := s.(cleanable); ok {
				n, err := c.Cleanup(ctx)
				r.NoError(err)
				r.Equal(int64(1), n)
			}

			got, err := s.ListFor(ctx, "alice@example.com", 10)
			r.NoError(err)
			r.Equal([]string{"new"}, ids(got))
		})
	}
}

func TestStoreCleanupDisabledWithoutRetention(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop(), Options{})
	defer s.Close()

	r.NoError(s.Append(ctx, record("old", "alice@example.com", time.Now().Add(-24*365*time.Hour))))
	n, err := s.Cleanup(ctx)
	r.NoError(err)
	r.Zero(n)

	got, err := s.ListFor(ctx, "alice@example.com", 10)
	r.NoError(err)
	r.Len(got, 1)
}

func TestBackgroundCleanup(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop(), Options{Retention: time.Hour, CleanupFrequency: 10 * time.Millisecond})

	r.NoError(s.Append(ctx, record("old", "alice@example.com", time.Now().Add(-2*time.Hour))))
	r.Eventually(func() bool {
		got, err := s.ListFor(ctx, "alice@example.com", 10)
		return err == nil && len(got) == 0
	}, 2*time.Second, 10*time.Millisecond)

	r.NoError(s.Close())
	// A second close must not block or panic.
	r.NoError(s.Close())
}

func TestHistoryKeyTime(t *testing.T) {
	r := require.New(t)

	nanos, ok := historyKeyTime("hist:alice@example.com:0000000000000000042:0000000000000000001")
	r.True(ok)
	r.Equal(int64(42), nanos)

	nanos, ok = historyKeyTime("hist:a:b:0000000000000000007:0000000000000000001")
	r.True(ok)
	r.Equal(int64(7), nanos)

	_, ok = historyKeyTime("hist:broken")
	r.False(ok)
}

func TestNewDynamoDBStoreValidates(t *testing.T) {
	r := require.New(t)

	_, err := newDynamoDBStore(nil, "table", zap.NewNop(), Options{})
	r.Error(err)

	_, err = newDynamoDBStore(newFakeDynamo(), "  ", zap.NewNop(), Options{})
	r.Error(err)
}

func TestDynamoDBStoreWritesTTL(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	fake := newFakeDynamo()
	s, err := newDynamoDBStore(fake, "predictions", zap.NewNop(), Options{Retention: time.Hour})
	r.NoError(err)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.NoError(s.Append(ctx, record("a", "alice@example.com", at)))

	item := fake.lastPut
	pk, err := strAttr(item, "PK")
	r.NoError(err)
	r.Equal(historyPK("alice@example.com"), pk)
	ttl, err := intAttr(item, "ttl")
	r.NoError(err)
	r.Equal(at.Add(time.Hour).Unix(), ttl)
}

func TestStoreListForNonPositiveLimit(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			r := require.New(t)
			ctx := context.Background()
			s := b.open(t, Options{})
			defer s.Close()

			r.NoError(s.Append(ctx, record("a", "alice@example.com", time.Now().UTC())))

			for _, limit := range []int{0, -1} {
				got, err := s.ListFor(ctx, "alice@example.com", limit)
				r.NoError(err)
				r.NotNil(got)
				r.Empty(got)
			}
		})
	}
}
