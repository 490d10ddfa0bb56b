// Package audit keeps a SQLite log of retry attempts.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/aschepis/backscratcher/llmretry/migrations"
	"github.com/aschepis/backscratcher/llmretry/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one stored attempt.
type Record struct {
	ID         int64
	CallID     uuid.UUID
	ModelID    string
	ModelIndex int
	Attempt    int
	Stream     bool
	Delay      time.Duration
	Duration   time.Duration
	Outcome    retry.Outcome
	ErrorType  string
	Error      string
	CreatedAt  time.Time
}

// Store writes attempts to the retry_attempts table. It implements
// retry.Observer.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens the SQLite database at path, applies migrations and returns a
// store that owns the connection.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db, logger), nil
}

// NewStore returns a store on an already migrated database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ObserveAttempt implements retry.Observer. Write failures are logged, never
// returned to the retry loop.
func (s *Store) ObserveAttempt(ctx context.Context, a retry.Attempt) {
	if err := s.Record(context.WithoutCancel(ctx), a); err != nil {
		s.logger.Error().
			Str("method", "observe_attempt").
			Str("call_id", a.CallID.String()).
			Err(err).
			Msg("Failed to record attempt")
	}
}

// Record stores a.
func (s *Store) Record(ctx context.Context, a retry.Attempt) error {
	var errType, errMsg any
	if a.Err != nil {
		errMsg = a.Err.Error()
		if t, ok := llm.TypeOf(a.Err); ok {
			errType = string(t)
		}
	}

	query, args, err := sq.Insert("retry_attempts").
		Columns("call_id", "model_id", "model_index", "attempt", "stream",
			"delay_ms", "duration_ms", "outcome", "error_type", "error", "created_at").
		Values(a.CallID.String(), a.ModelID, a.ModelIndex, a.Number, a.Stream,
			a.Delay.Milliseconds(), a.Duration.Milliseconds(), string(a.Outcome), errType, errMsg,
			s.now().UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert retry_attempt: %w", err)
	}
	return nil
}

// ListByCall returns the attempts of one logical call in order.
func (s *Store) ListByCall(ctx context.Context, callID uuid.UUID) ([]Record, error) {
	return s.list(ctx, selectAttempts().
		Where(sq.Eq{"call_id": callID.String()}).
		OrderBy("id ASC"))
}

// RecentFailures returns up to limit failed attempts, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit uint64) ([]Record, error) {
	return s.list(ctx, selectAttempts().
		Where(sq.NotEq{"outcome": string(retry.OutcomeSuccess)}).
		OrderBy("id DESC").
		Limit(limit))
}

// Summary counts stored attempts per outcome.
func (s *Store) Summary(ctx context.Context) (map[retry.Outcome]int, error) {
	query, args, err := sq.Select("outcome", "COUNT(*)").
		From("retry_attempts").
		GroupBy("outcome").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build summary query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	out := make(map[retry.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out[retry.Outcome(outcome)] = n
	}
	return out, rows.Err()
}

func selectAttempts() sq.SelectBuilder {
	return sq.Select(
		"id", "call_id", "model_id", "model_index", "attempt", "stream",
		"delay_ms", "duration_ms", "outcome", "error_type", "error", "created_at",
	).From("retry_attempts")
}

func (s *Store) list(ctx context.Context, b sq.SelectBuilder) ([]Record, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query retry_attempts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r                   Record
		callID, outcome     string
		delayMs, durationMs int64
		createdAt           int64
		errType, errMsg     sql.NullString
	)
	if err := rows.Scan(&r.ID, &callID, &r.ModelID, &r.ModelIndex, &r.Attempt, &r.Stream,
		&delayMs, &durationMs, &outcome, &errType, &errMsg, &createdAt); err != nil {
		return Record{}, fmt.Errorf("scan retry_attempt: %w", err)
	}
	id, err := uuid.Parse(callID)
	if err != nil {
		return Record{}, fmt.Errorf("invalid call id %q: %w", callID, err)
	}
	r.CallID = id
	r.Delay = time.Duration(delayMs) * time.Millisecond
	r.Duration = time.Duration(durationMs) * time.Millisecond
	r.Outcome = retry.Outcome(outcome)
	r.ErrorType = errType.String
	r.Error = errMsg.String
	r.CreatedAt = time.UnixMilli(createdAt)
	return r, nil
}

var _ retry.Observer = (*Store)(nil)
