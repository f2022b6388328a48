package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aagamb/granthsync/internal/data"
)

// PostgresSessionRepo implements SessionRepo backed by PostgreSQL.
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo constructs a repository using the provided DSN and
// verifies connectivity before returning.
func NewPostgresSessionRepo(dsn string) (*PostgresSessionRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &PostgresSessionRepo{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresSessionRepo) Close() error { return r.db.Close() }

func (r *PostgresSessionRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sync_sessions (
    id UUID PRIMARY KEY,
    outcome TEXT NOT NULL,
    total INT NOT NULL,
    completed INT NOT NULL,
    failed INT NOT NULL,
    cancelled INT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
`)
	return err
}

func (r *PostgresSessionRepo) Add(ctx context.Context, rec *data.SessionRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_sessions (id,outcome,total,completed,failed,cancelled,started_at,finished_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, string(rec.Outcome), rec.Total, rec.Completed, rec.Failed, rec.Cancelled,
		rec.StartedAt, rec.FinishedAt)
	return err
}

func (r *PostgresSessionRepo) List(ctx context.Context) (data.SessionRecords, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id,outcome,total,completed,failed,cancelled,started_at,finished_at
		 FROM sync_sessions ORDER BY started_at DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out data.SessionRecords
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresSessionRepo) Latest(ctx context.Context) (*data.SessionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id,outcome,total,completed,failed,cancelled,started_at,finished_at
		 FROM sync_sessions ORDER BY started_at DESC LIMIT 1`)
	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, data.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*data.SessionRecord, error) {
	var rec data.SessionRecord
	var outcome string
	if err := row.Scan(&rec.ID, &outcome, &rec.Total, &rec.Completed, &rec.Failed,
		&rec.Cancelled, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, err
	}
	rec.Outcome = data.SessionState(outcome)
	return &rec, nil
}
