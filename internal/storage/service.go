package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"path"
	"time"

	"github.com/tsullivan13/skate-bounty-app/internal/db"

	"github.com/google/uuid"
)

var (
	ErrDataRequired = errors.New("data required")
	ErrInvalidData  = errors.New("data must be base64 encoded")
)

type Object struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	Kind      string    `json:"kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	db       db.Querier
	uploader Uploader
}

// NewService builds the blob store service. A nil uploader is allowed; the
// service then records stub URLs so the rest of the API keeps working in
// environments without object storage.
func NewService(db db.Querier, uploader Uploader) *Service {
	return &Service{db: db, uploader: uploader}
}

type UploadInput struct {
	Data        string `json:"data"`
	ContentType string `json:"content_type"`
	Kind        string `json:"kind"`
	Filename    string `json:"filename"`
}

func (s *Service) Upload(ctx context.Context, userID string, input UploadInput) (Object, error) {
	if input.Data == "" {
		return Object{}, ErrDataRequired
	}
	body, err := base64.StdEncoding.DecodeString(input.Data)
	if err != nil {
		return Object{}, ErrInvalidData
	}
	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	obj := Object{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   input.Kind,
	}
	key := "user_" + userID + "/" + obj.ID + path.Ext(input.Filename)
	if s.uploader != nil {
		url, err := s.uploader.Upload(ctx, key, body, contentType)
		if err != nil {
			return Object{}, err
		}
		obj.URL = url
	} else {
		obj.URL = "https://storage.example/" + key
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO storage_objects (id, user_id, url, kind)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, obj.ID, obj.UserID, obj.URL, obj.Kind)
	if err := row.Scan(&obj.CreatedAt); err != nil {
		return Object{}, err
	}
	return obj, nil
}
