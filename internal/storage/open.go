package storage

import (
	"context"
	"fmt"
	"strings"
)

// OpenLedger picks the backend from the DSN scheme: postgres:// or
// postgresql:// select Postgres, sqlite:// or a bare path select SQLite.
func OpenLedger(ctx context.Context, dsn string) (Ledger, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := NewDB(ctx, dsn)
		if err != nil {
			return nil, err
		}
		repo := NewBookRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return repo, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case dsn == "":
		return nil, fmt.Errorf("ledger dsn is empty")
	default:
		return OpenSQLite(ctx, dsn)
	}
}
