package profile

import (
	"context"
	"errors"
	"regexp"

	"github.com/tsullivan13/skate-bounty-app/internal/db"
)

var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

var (
	ErrInvalidHandle = errors.New("handle must be 3-20 letters, digits or underscores")
	ErrHandleTaken   = errors.New("handle already taken")
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Get returns the profile for userID. A user who never claimed a handle has
// no row; that surfaces as pgx.ErrNoRows, not a failure.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(handle,''), created_at
		FROM profiles WHERE id=$1
	`, userID)
	var p Profile
	if err := row.Scan(&p.ID, &p.Handle, &p.CreatedAt); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *Service) UpsertHandle(ctx context.Context, userID, handle string) (Profile, error) {
	if !handleRe.MatchString(handle) {
		return Profile{}, ErrInvalidHandle
	}

	p := Profile{ID: userID, Handle: handle}
	row := s.db.QueryRow(ctx, `
		INSERT INTO profiles (id, handle)
		VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET handle=EXCLUDED.handle
		RETURNING created_at
	`, userID, handle)
	if err := row.Scan(&p.CreatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Profile{}, ErrHandleTaken
		}
		return Profile{}, err
	}
	return p, nil
}

// Lookup returns the known profiles for the given user ids. Ids are
// deduplicated; users without a profile are simply absent from the result.
func (s *Service) Lookup(ctx context.Context, ids []string) ([]Profile, error) {
	deduped := dedupe(ids)
	if len(deduped) == 0 {
		return []Profile{}, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, COALESCE(handle,''), created_at
		FROM profiles WHERE id = ANY($1)
	`, deduped)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Handle, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func dedupe(ids []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
