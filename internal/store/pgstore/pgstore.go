// Package pgstore opens the SQL backend against Postgres through the pgx
// database/sql driver.
package pgstore

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/store/sqlstore"
)

type Store struct {
	*sqlstore.Store
}

func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{Store: sqlstore.New(db, sqlstore.Postgres)}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB().PingContext(ctx)
}

var _ store.Backend = (*Store)(nil)
