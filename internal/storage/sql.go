package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	logx "jokeline/pkg/logx"
)

// sqlStore serves both SQL drivers; statements use '?' placeholders and are
// rebound for the driver at construction.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger

	qFindSub       string
	qListSubs      string
	qInsertSub     string
	qDeleteSub     string
	qFindEntry     string
	qRecordContent string
}

type subscriberRow struct {
	Address   string `db:"address"`
	CreatedMS int64  `db:"created_ms"`
}

type ledgerRow struct {
	ContentID  string `db:"content_id"`
	RecordedMS int64  `db:"recorded_ms"`
}

func newSQLStore(db *sqlx.DB, cfg Config, log logx.Logger) (*sqlStore, error) {
	if err := validTable(cfg.SubscribersTable); err != nil {
		return nil, err
	}
	if err := validTable(cfg.LedgerTable); err != nil {
		return nil, err
	}
	subs, ledger := cfg.SubscribersTable, cfg.LedgerTable
	return &sqlStore{
		db:             db,
		log:            log,
		qFindSub:       db.Rebind(fmt.Sprintf(`SELECT address, created_ms FROM %s WHERE address = ?`, subs)),
		qListSubs:      fmt.Sprintf(`SELECT address, created_ms FROM %s ORDER BY created_ms, address`, subs),
		qInsertSub:     db.Rebind(fmt.Sprintf(`INSERT INTO %s (address, created_ms) VALUES (?, ?) ON CONFLICT (address) DO NOTHING`, subs)),
		qDeleteSub:     db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE address = ?`, subs)),
		qFindEntry:     db.Rebind(fmt.Sprintf(`SELECT content_id, recorded_ms FROM %s WHERE content_id = ?`, ledger)),
		qRecordContent: db.Rebind(fmt.Sprintf(`INSERT INTO %s (content_id, recorded_ms) VALUES (?, ?) ON CONFLICT (content_id) DO NOTHING`, ledger)),
	}, nil
}

// migrate creates both tables. The DDL is portable across sqlite and postgres.
func (s *sqlStore) migrate(ctx context.Context, cfg Config) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	address    TEXT PRIMARY KEY,
	created_ms BIGINT NOT NULL
)`, cfg.SubscribersTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	content_id  TEXT PRIMARY KEY,
	recorded_ms BIGINT NOT NULL
)`, cfg.LedgerTable),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) FindSubscriber(ctx context.Context, address string) (Subscriber, bool, error) {
	var r subscriberRow
	err := s.db.GetContext(ctx, &r, s.qFindSub, address)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscriber{}, false, nil
	}
	if err != nil {
		return Subscriber{}, false, fmt.Errorf("find subscriber: %w", err)
	}
	return Subscriber{Address: r.Address, CreatedAt: fromMillis(r.CreatedMS)}, true, nil
}

func (s *sqlStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	var rows []subscriberRow
	if err := s.db.SelectContext(ctx, &rows, s.qListSubs); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	out := make([]Subscriber, 0, len(rows))
	for _, r := range rows {
		out = append(out, Subscriber{Address: r.Address, CreatedAt: fromMillis(r.CreatedMS)})
	}
	return out, nil
}

func (s *sqlStore) InsertSubscriber(ctx context.Context, address string) (bool, error) {
	return s.execKeyed(ctx, "insert subscriber", s.qInsertSub, address, time.Now().UnixMilli())
}

func (s *sqlStore) DeleteSubscriber(ctx context.Context, address string) (bool, error) {
	return s.execKeyed(ctx, "delete subscriber", s.qDeleteSub, address)
}

func (s *sqlStore) FindContent(ctx context.Context, contentID string) (LedgerEntry, bool, error) {
	var r ledgerRow
	err := s.db.GetContext(ctx, &r, s.qFindEntry, contentID)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, false, nil
	}
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("find content: %w", err)
	}
	return LedgerEntry{ContentID: r.ContentID, RecordedAt: fromMillis(r.RecordedMS)}, true, nil
}

func (s *sqlStore) RecordContent(ctx context.Context, contentID string) (bool, error) {
	return s.execKeyed(ctx, "record content", s.qRecordContent, contentID, time.Now().UnixMilli())
}

// execKeyed runs a single-row statement keyed by key and reports whether a row changed.
func (s *sqlStore) execKeyed(ctx context.Context, op, q, key string, extra ...any) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, fmt.Errorf("%s: %w", op, errEmptyKey)
	}
	res, err := s.db.ExecContext(ctx, q, append([]any{key}, extra...)...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}
