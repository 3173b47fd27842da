package storage

import (
	"context"
	"errors"
	"regexp"
	"time"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrInvalidTable  = errors.New("invalid table name")
	ErrClosed        = errors.New("storage closed")

	errEmptyKey = errors.New("empty key")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at DSN (default)
//   - "postgres": Postgres connection URL in DSN
//   - "file": dependency-free journal + snapshot, DSN is the path prefix
//   - "memory": process-local, for tests and dry runs
type Config struct {
	Driver           string
	DSN              string
	SubscribersTable string
	LedgerTable      string
	ConnectTimeout   time.Duration
	BusyTimeout      time.Duration // sqlite only; 0 means default
	MaxOpenConns     int           // postgres only; 0 means default
}

// Subscriber is an active opt-in. Presence in the store means subscribed.
type Subscriber struct {
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry marks a content item as already broadcast.
type LedgerEntry struct {
	ContentID  string    `json:"content_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

type SubscriberStore interface {
	FindSubscriber(ctx context.Context, address string) (Subscriber, bool, error)
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
	// InsertSubscriber is idempotent; created is false when the address already exists.
	InsertSubscriber(ctx context.Context, address string) (created bool, err error)
	// DeleteSubscriber is idempotent; removed is false when the address was absent.
	DeleteSubscriber(ctx context.Context, address string) (removed bool, err error)
}

type ContentLedger interface {
	FindContent(ctx context.Context, contentID string) (LedgerEntry, bool, error)
	// RecordContent is idempotent; created is false when the id was already recorded.
	RecordContent(ctx context.Context, contentID string) (created bool, err error)
}

// Store is the full persistence API used by the app.
type Store interface {
	SubscriberStore
	ContentLedger
	Ping(ctx context.Context) error
	Close() error
}

var reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func validTable(name string) error {
	if !reIdent.MatchString(name) {
		return errors.Join(ErrInvalidTable, errors.New(name))
	}
	return nil
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
