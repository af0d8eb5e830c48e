package spot

import (
	"context"
	"errors"
	"strings"

	"github.com/tsullivan13/skate-bounty-app/internal/db"
	"github.com/tsullivan13/skate-bounty-app/internal/shared/geo"

	"github.com/google/uuid"
)

var (
	ErrTitleRequired = errors.New("title required")
	ErrCoordsPair    = errors.New("lat and lng must be provided together")
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

type CreateInput struct {
	Title    string   `json:"title"`
	ImageURL string   `json:"image_url"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (Spot, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Spot{}, ErrTitleRequired
	}
	// Coordinates come as a pair or not at all; the table does not enforce
	// pairing, so the API layer must.
	if (input.Lat == nil) != (input.Lng == nil) {
		return Spot{}, ErrCoordsPair
	}

	sp := Spot{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    title,
		ImageURL: input.ImageURL,
		Lat:      input.Lat,
		Lng:      input.Lng,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO spots (id, user_id, title, image_url, lat, lng)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, sp.ID, sp.UserID, sp.Title, sp.ImageURL, sp.Lat, sp.Lng)
	if err := row.Scan(&sp.CreatedAt); err != nil {
		return Spot{}, err
	}
	return sp, nil
}

func (s *Service) Get(ctx context.Context, id string) (Spot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, title, COALESCE(image_url,''), lat, lng, created_at
		FROM spots WHERE id=$1
	`, id)
	var sp Spot
	if err := row.Scan(&sp.ID, &sp.UserID, &sp.Title, &sp.ImageURL, &sp.Lat, &sp.Lng, &sp.CreatedAt); err != nil {
		return Spot{}, err
	}
	return sp, nil
}

func (s *Service) List(ctx context.Context) ([]Spot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, title, COALESCE(image_url,''), lat, lng, created_at
		FROM spots
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spots []Spot
	for rows.Next() {
		var sp Spot
		if err := rows.Scan(&sp.ID, &sp.UserID, &sp.Title, &sp.ImageURL, &sp.Lat, &sp.Lng, &sp.CreatedAt); err != nil {
			return nil, err
		}
		spots = append(spots, sp)
	}
	return spots, nil
}

// Nearby filters geocoded spots to those within radiusKm of the given point,
// preserving the newest-first list order. Spots without coordinates never
// match.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]Spot, error) {
	spots, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var nearby []Spot
	for _, sp := range spots {
		if sp.Lat == nil || sp.Lng == nil {
			continue
		}
		if geo.HaversineKm(lat, lng, *sp.Lat, *sp.Lng) <= radiusKm {
			nearby = append(nearby, sp)
		}
	}
	return nearby, nil
}
