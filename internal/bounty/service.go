package bounty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tsullivan13/skate-bounty-app/internal/db"
	"github.com/tsullivan13/skate-bounty-app/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrTrickRequired = errors.New("trick required")
	ErrRewardKind    = errors.New("unknown reward kind")
	ErrRewardAmount  = errors.New("reward amount must be positive")
	ErrRewardText    = errors.New("reward text required")
	ErrInvalidStatus = errors.New("unknown status filter")
	ErrNotOwner      = errors.New("only the owner can close a bounty")
	ErrAlreadyClosed = errors.New("bounty already closed")
)

type Service struct {
	db  db.Querier
	hub *stream.Hub
}

func NewService(db db.Querier, hub *stream.Hub) *Service {
	return &Service{db: db, hub: hub}
}

type CreateInput struct {
	Trick     string     `json:"trick"`
	Reward    *Reward    `json:"reward"`
	SpotID    string     `json:"spot_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func validateReward(r *Reward) (Reward, error) {
	if r == nil || r.Kind == "" || r.Kind == RewardNone {
		return Reward{Kind: RewardNone}, nil
	}
	switch r.Kind {
	case RewardNumeric:
		if r.Amount <= 0 {
			return Reward{}, ErrRewardAmount
		}
		return Reward{Kind: RewardNumeric, Amount: r.Amount, Type: strings.TrimSpace(r.Type)}, nil
	case RewardText:
		text := strings.TrimSpace(r.Text)
		if text == "" {
			return Reward{}, ErrRewardText
		}
		return Reward{Kind: RewardText, Text: text}, nil
	default:
		return Reward{}, ErrRewardKind
	}
}

func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (Bounty, error) {
	trick := strings.TrimSpace(input.Trick)
	if trick == "" {
		return Bounty{}, ErrTrickRequired
	}
	reward, err := validateReward(input.Reward)
	if err != nil {
		return Bounty{}, err
	}

	b := Bounty{
		ID:        uuid.NewString(),
		UserID:    userID,
		Trick:     trick,
		Reward:    reward,
		Status:    StatusOpen,
		SpotID:    input.SpotID,
		ExpiresAt: input.ExpiresAt,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO bounties (id, user_id, trick, reward_kind, reward_amount, reward_type, reward_text, status, spot_id, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, b.ID, b.UserID, b.Trick, b.Reward.Kind, nullIfZero(b.Reward.Amount),
		nullIfEmpty(b.Reward.Type), nullIfEmpty(b.Reward.Text), b.Status,
		nullIfEmpty(b.SpotID), b.ExpiresAt)
	if err := row.Scan(&b.CreatedAt); err != nil {
		return Bounty{}, err
	}
	s.hub.Publish(stream.TopicBounties, "insert", b)
	return b, nil
}

// Close is the owner-only open -> closed transition. Expiry never closes a
// bounty; only this call does.
func (s *Service) Close(ctx context.Context, id, userID string) (Bounty, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bounties SET status='closed' WHERE id=$1 AND user_id=$2 AND status='open'
	`, id, userID)
	if err != nil {
		return Bounty{}, err
	}
	if tag.RowsAffected() == 0 {
		// Disambiguate: missing, foreign, or already closed.
		var owner, status string
		row := s.db.QueryRow(ctx, `SELECT user_id, status FROM bounties WHERE id=$1`, id)
		if err := row.Scan(&owner, &status); err != nil {
			return Bounty{}, err
		}
		if owner != userID {
			return Bounty{}, ErrNotOwner
		}
		return Bounty{}, ErrAlreadyClosed
	}

	b, err := s.Get(ctx, id)
	if err != nil {
		return Bounty{}, err
	}
	s.hub.Publish(stream.TopicBounties, "update", b)
	return b, nil
}

const selectColumns = `
	b.id, b.user_id, b.trick, b.reward_kind,
	COALESCE(b.reward_amount,0)::float8, COALESCE(b.reward_type,''),
	COALESCE(b.reward_text,''), b.status, COALESCE(b.spot_id,''),
	b.expires_at, b.created_at`

func scanBounty(row pgx.Row) (Bounty, error) {
	var b Bounty
	err := row.Scan(&b.ID, &b.UserID, &b.Trick, &b.Reward.Kind, &b.Reward.Amount,
		&b.Reward.Type, &b.Reward.Text, &b.Status, &b.SpotID, &b.ExpiresAt, &b.CreatedAt)
	if err != nil {
		return Bounty{}, err
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, id string) (Bounty, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM bounties b WHERE b.id=$1
	`, id)
	return scanBounty(row)
}

type FeedFilter struct {
	UserID string
	Status string
	Query  string
}

// Feed lists bounties newest first. Status filters on derived state: "open"
// and "expired" both live on status='open' rows split by expires_at, so the
// split happens in SQL against now().
func (s *Service) Feed(ctx context.Context, f FeedFilter) ([]Bounty, error) {
	var conditions []string
	var args []any

	if f.UserID != "" {
		args = append(args, f.UserID)
		conditions = append(conditions, fmt.Sprintf("b.user_id = $%d", len(args)))
	}
	switch f.Status {
	case "":
	case "open":
		conditions = append(conditions, "b.status = 'open' AND (b.expires_at IS NULL OR b.expires_at > now())")
	case "expired":
		conditions = append(conditions, "b.status = 'open' AND b.expires_at IS NOT NULL AND b.expires_at <= now()")
	case StatusClosed:
		conditions = append(conditions, "b.status = 'closed'")
	default:
		return nil, ErrInvalidStatus
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(`(
			b.trick ILIKE $%[1]d
			OR COALESCE(b.reward_text,'') ILIKE $%[1]d
			OR COALESCE(b.reward_type,'') ILIKE $%[1]d
			OR COALESCE(sp.title,'') ILIKE $%[1]d
			OR EXISTS (
				SELECT 1 FROM submissions s
				JOIN profiles p ON p.id = s.user_id
				WHERE s.bounty_id = b.id AND COALESCE(p.handle,'') ILIKE $%[1]d
			)
		)`, n))
	}

	query := `
		SELECT ` + selectColumns + `
		FROM bounties b
		LEFT JOIN spots sp ON sp.id = b.spot_id`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY b.created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bounties []Bounty
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, err
		}
		bounties = append(bounties, b)
	}
	return bounties, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}
