package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func bindQuerier(q querier) Repositories {
	return Repositories{
		Items:       &itemRepository{db: q},
		Messages:    &messageRepository{db: q},
		Scheduled:   &scheduledMessageRepository{db: q},
		Escalations: &escalationRepository{db: q},
		Notes:       &auditNoteRepository{db: q},
	}
}

func (s *postgresStore) WithTx(ctx context.Context, fn func(Repositories) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(bindQuerier(tx))
	})
}

func (s *postgresStore) Reader() Repositories {
	return bindQuerier(s.pool)
}

func (s *postgresStore) Staff() StaffRepository {
	return NewStaffRepository(s.pool)
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// notFound maps pgx's no-rows sentinel to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
