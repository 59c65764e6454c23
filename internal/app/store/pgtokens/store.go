// Package pgtokens stores action tokens in PostgreSQL for deployments that
// run several instances against a shared database.
package pgtokens

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dalemusser/stratagate/internal/app/system/actiontoken"
	"github.com/dalemusser/stratagate/internal/app/system/ids"
)

const schema = `
create table if not exists action_tokens (
	id          text primary key,
	token_hash  text not null unique,
	action      text not null,
	target_id   text not null,
	issued_to   text not null,
	expires_at  timestamptz not null,
	created_at  timestamptz not null
);
create index if not exists action_tokens_expires_at_idx on action_tokens (expires_at);
`

// Store implements actiontoken.Store on a *sql.DB.
type Store struct {
	db *sql.DB
}

var _ actiontoken.Store = (*Store)(nil)

// Open connects through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the table and index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Put(ctx context.Context, rec actiontoken.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into action_tokens(id, token_hash, action, target_id, issued_to, expires_at, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, ids.New(), rec.Hash, rec.Action, rec.TargetID, rec.IssuedTo, rec.ExpiresAt, rec.CreatedAt)
	return err
}

// Take deletes the matching unexpired row. The single delete statement makes
// concurrent takes of one token race inside Postgres, so only one sees a row.
func (s *Store) Take(ctx context.Context, hash, action, targetID, presentedBy string, now time.Time) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		delete from action_tokens
		where token_hash=$1 and action=$2 and target_id=$3 and issued_to=$4 and expires_at > $5
		returning id
	`, hash, action, targetID, presentedBy, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from action_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
