package pgtokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dalemusser/stratagate/internal/app/system/actiontoken"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("create table if not exists action_tokens").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPut(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	rec := actiontoken.Record{
		Hash:      "abc",
		Action:    "disable",
		TargetID:  "u1",
		IssuedTo:  "a1",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	mock.ExpectExec("insert into action_tokens").
		WithArgs(sqlmock.AnyArg(), "abc", "disable", "u1", "a1", rec.ExpiresAt, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Put(context.Background(), rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTake(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		setup   func(m sqlmock.Sqlmock)
		want    bool
		wantErr bool
	}{
		{
			name: "consumed",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("delete from action_tokens.*returning id").
					WithArgs("h", "enable", "u1", "a1", now).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("01HZX"))
			},
			want: true,
		},
		{
			name: "absent or already used",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("delete from action_tokens.*returning id").
					WithArgs("h", "enable", "u1", "a1", now).
					WillReturnError(sql.ErrNoRows)
			},
			want: false,
		},
		{
			name: "database error",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("delete from action_tokens.*returning id").
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMock(t)
			tt.setup(mock)

			got, err := store.Take(context.Background(), "h", "enable", "u1", "a1", now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Take error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Take = %v, want %v", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestPurgeExpired(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectExec("delete from action_tokens where expires_at").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Errorf("purged %d, want 3", n)
	}
}

func TestIssuerRoundTrip(t *testing.T) {
	store, mock := newMock(t)
	issuer := actiontoken.NewIssuer(store, time.Hour)

	mock.ExpectExec("insert into action_tokens").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "disable", "u1", "a1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tok, err := issuer.Issue(context.Background(), "disable", "u1", "a1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mock.ExpectQuery("delete from action_tokens.*returning id").
		WithArgs(actiontoken.Hash(tok.Value), "disable", "u1", "a1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("01HZY"))

	ok, err := issuer.VerifyAndConsume(context.Background(), tok.Value, "disable", "u1", "a1")
	if err != nil || !ok {
		t.Fatalf("VerifyAndConsume = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
