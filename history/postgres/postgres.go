// Package postgres stores experiment trials in PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/history"
)

//////
// Const, vars, types.
//////

const schema = `
CREATE TABLE IF NOT EXISTS automl_trials (
	run_id      TEXT NOT NULL,
	iteration   INTEGER NOT NULL,
	stage       TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	trainer     TEXT NOT NULL,
	hyperparams JSONB NOT NULL DEFAULT '{}',
	transforms  JSONB NOT NULL DEFAULT '[]',
	score       DOUBLE PRECISION,
	success     BOOLEAN NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	fold_scores JSONB NOT NULL DEFAULT '[]',
	duration_ms BIGINT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, iteration)
);
CREATE INDEX IF NOT EXISTS automl_trials_score_idx ON automl_trials (run_id, score);
`

const insertQuery = `
INSERT INTO automl_trials (
	run_id, iteration, stage, fingerprint, trainer, hyperparams, transforms,
	score, success, error, fold_scores, duration_ms, recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (run_id, iteration) DO NOTHING`

const selectQuery = `
SELECT run_id, iteration, stage, fingerprint, trainer, hyperparams, transforms,
	score, success, error, fold_scores, duration_ms, recorded_at
FROM automl_trials
WHERE run_id = $1
ORDER BY iteration`

// DB is the subset of *sql.DB the store needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Config holds connection settings.
type Config struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store records trials in the automl_trials table. It implements
// automl.Recorder.
type Store struct {
	db  DB
	now func() time.Time
}

//////
// Factory.
//////

// DefaultConfig returns connection defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		PingTimeout:     2 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("database url is required")
	}

	if c.PingTimeout <= 0 {
		return errors.New("ping timeout must be positive")
	}

	if c.MaxOpenConns < 1 {
		return errors.New("max open conns must be >= 1")
	}

	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max idle conns must be between 0 and max open conns")
	}

	return nil
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}

// New returns a store over db.
func New(db DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}

	return &Store{db: db, now: time.Now}, nil
}

//////
// Methods.
//////

// EnsureSchema creates the table and index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	return nil
}

// Record implements automl.Recorder. Recording the same iteration of a run
// twice keeps the first row.
func (s *Store) Record(ctx context.Context, t automl.Trial) error {
	return s.Insert(ctx, history.FromTrial(t, s.now()))
}

// Insert stores one record.
func (s *Store) Insert(ctx context.Context, r history.Record) error {
	args, err := insertArgs(r)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, insertQuery, args...); err != nil {
		return fmt.Errorf("insert trial %s/%d: %w", r.RunID, r.Iteration, err)
	}

	return nil
}

// Load returns the records of a run ordered by iteration.
func (s *Store) Load(ctx context.Context, runID string) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []history.Record

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}

	return out, nil
}

//////
// Helper functions.
//////

func insertArgs(r history.Record) ([]any, error) {
	hp := r.Hyperparams
	if hp == nil {
		hp = map[string]string{}
	}

	hyperparams, err := json.Marshal(hp)
	if err != nil {
		return nil, fmt.Errorf("encode hyperparams: %w", err)
	}

	transforms, err := json.Marshal(nonNil(r.Transforms))
	if err != nil {
		return nil, fmt.Errorf("encode transforms: %w", err)
	}

	folds, err := json.Marshal(nonNil(r.FoldScores))
	if err != nil {
		return nil, fmt.Errorf("encode fold scores: %w", err)
	}

	var score sql.NullFloat64
	if r.Score != nil {
		score = sql.NullFloat64{Float64: *r.Score, Valid: true}
	}

	return []any{
		r.RunID,
		r.Iteration,
		r.Stage,
		r.Fingerprint,
		r.Trainer,
		hyperparams,
		transforms,
		score,
		r.Success,
		r.Error,
		folds,
		r.DurationMS,
		r.RecordedAt.UTC(),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (history.Record, error) {
	var (
		r                            history.Record
		hyperparams, transforms, fds []byte
		score                        sql.NullFloat64
	)

	if err := row.Scan(
		&r.RunID, &r.Iteration, &r.Stage, &r.Fingerprint, &r.Trainer,
		&hyperparams, &transforms, &score, &r.Success, &r.Error, &fds,
		&r.DurationMS, &r.RecordedAt,
	); err != nil {
		return history.Record{}, fmt.Errorf("scan trial: %w", err)
	}

	if err := decodeJSON(hyperparams, &r.Hyperparams); err != nil {
		return history.Record{}, fmt.Errorf("decode hyperparams: %w", err)
	}

	if len(r.Hyperparams) == 0 {
		r.Hyperparams = nil
	}

	if err := decodeJSON(transforms, &r.Transforms); err != nil {
		return history.Record{}, fmt.Errorf("decode transforms: %w", err)
	}

	if err := decodeJSON(fds, &r.FoldScores); err != nil {
		return history.Record{}, fmt.Errorf("decode fold scores: %w", err)
	}

	if score.Valid {
		v := score.Float64
		r.Score = &v
	}

	return r, nil
}

func decodeJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
