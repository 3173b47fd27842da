package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	logx "jokeline/pkg/logx"
)

// Open connects the configured store and prepares its schema.
// It fails fast: a store that cannot be reached is an error, never a lazy retry.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.SubscribersTable) == "" {
		cfg.SubscribersTable = "subscribers"
	}
	if strings.TrimSpace(cfg.LedgerTable) == "" {
		cfg.LedgerTable = "content_ledger"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql":
		return openPostgres(ctx, cfg, log)
	case "file":
		return openFile(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
