package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// SessionRepo persists and loads sessions from PostgreSQL using a minimal
// pgx pool. CV ids and messages live in JSONB columns; sessions are small
// (a handful of CVs, a capped history) so row-per-message storage would
// buy nothing.
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

// Schema is the DDL the repository expects. Applied by EnsureSchema at
// startup; kept idempotent so repeated boots are safe.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    cv_ids     JSONB NOT NULL DEFAULT '[]',
    messages   JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the sessions table when missing.
func (r *SessionRepo) EnsureSchema(ctx domain.Context) error {
	if _, err := r.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("op=session.ensure_schema: %w", err)
	}
	return nil
}

// Create inserts a new session; fails with ErrConflict on duplicate id.
func (r *SessionRepo) Create(ctx domain.Context, s domain.Session) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Create")
	defer span.End()
	if s.ID == "" {
		return fmt.Errorf("%w: session id required", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	cvIDs := s.CVIDs
	if cvIDs == nil {
		cvIDs = []string{}
	}
	msgs := s.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	q := `INSERT INTO sessions (id, name, cv_ids, messages, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (id) DO NOTHING`
	tag, err := r.Pool.Exec(ctx, q, s.ID, s.Name, cvIDs, msgs, s.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("op=session.create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.create: %w: session %s", domain.ErrConflict, s.ID)
	}
	return nil
}

// Get loads a session by id.
func (r *SessionRepo) Get(ctx domain.Context, id string) (domain.Session, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Get")
	defer span.End()
	q := `SELECT id, name, cv_ids, messages, created_at, updated_at FROM sessions WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var s domain.Session
	if err := row.Scan(&s.ID, &s.Name, &s.CVIDs, &s.Messages, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
		}
		return domain.Session{}, fmt.Errorf("op=session.get: %w", err)
	}
	return s, nil
}

// AddCVs attaches CV ids to the session, de-duplicating against the
// stored set inside the database.
func (r *SessionRepo) AddCVs(ctx domain.Context, id string, cvIDs []string) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.AddCVs")
	defer span.End()
	q := `UPDATE sessions
	      SET cv_ids = (
	            SELECT COALESCE(jsonb_agg(DISTINCT v), '[]'::jsonb)
	            FROM jsonb_array_elements(cv_ids || $2::jsonb) AS t(v)
	          ),
	          updated_at = $3
	      WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, cvIDs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=session.add_cvs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.add_cvs: %w", domain.ErrNotFound)
	}
	return nil
}

// AppendMessage adds one conversation turn.
func (r *SessionRepo) AppendMessage(ctx domain.Context, id string, m domain.Message) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.AppendMessage")
	defer span.End()
	q := `UPDATE sessions SET messages = messages || $2::jsonb, updated_at = $3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, []domain.Message{m}, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=session.append: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.append: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes the session.
func (r *SessionRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=session.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.delete: %w", domain.ErrNotFound)
	}
	return nil
}
