// Package redis provides a Redis-backed session repository for local
// deployments that need sessions to survive process restarts.
package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

const keyPrefix = "cvrag:session:"

// SessionRepo stores sessions as JSON values under cvrag:session:<id>.
type SessionRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewSessionRepo constructs a repository on an existing client. A zero
// ttl keeps sessions forever.
func NewSessionRepo(client *goredis.Client, ttl time.Duration) *SessionRepo {
	return &SessionRepo{client: client, ttl: ttl}
}

func (r *SessionRepo) key(id string) string { return keyPrefix + id }

func (r *SessionRepo) save(ctx domain.Context, s domain.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("op=session.save marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("op=session.save: %w", err)
	}
	return nil
}

// Create stores a new session; fails on duplicate id.
func (r *SessionRepo) Create(ctx domain.Context, s domain.Session) error {
	if s.ID == "" {
		return fmt.Errorf("%w: session id required", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("op=session.create marshal: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(s.ID), b, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("op=session.create: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: session %s", domain.ErrConflict, s.ID)
	}
	return nil
}

// Get loads a session by id.
func (r *SessionRepo) Get(ctx domain.Context, id string) (domain.Session, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Session{}, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
		}
		return domain.Session{}, fmt.Errorf("op=session.get: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return domain.Session{}, fmt.Errorf("op=session.get unmarshal: %w", err)
	}
	return s, nil
}

// AddCVs attaches CV ids, de-duplicating.
func (r *SessionRepo) AddCVs(ctx domain.Context, id string, cvIDs []string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.CVIDs))
	for _, existing := range s.CVIDs {
		seen[existing] = struct{}{}
	}
	for _, cvID := range cvIDs {
		if _, ok := seen[cvID]; !ok {
			s.CVIDs = append(s.CVIDs, cvID)
			seen[cvID] = struct{}{}
		}
	}
	s.UpdatedAt = time.Now().UTC()
	return r.save(ctx, s)
}

// AppendMessage adds one conversation turn.
func (r *SessionRepo) AppendMessage(ctx domain.Context, id string, m domain.Message) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = time.Now().UTC()
	return r.save(ctx, s)
}

// Delete removes the session.
func (r *SessionRepo) Delete(ctx domain.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("op=session.delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("op=session.delete: %w", domain.ErrNotFound)
	}
	return nil
}
