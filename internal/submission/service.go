package submission

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/tsullivan13/skate-bounty-app/internal/db"
	"github.com/tsullivan13/skate-bounty-app/internal/instagram"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrAlreadyAccepted    = errors.New("bounty already accepted")
	ErrAlreadySubmitted   = errors.New("already submitted proof for this bounty")
	ErrAlreadyVoted       = errors.New("already voted for this submission")
	ErrNotVoted           = errors.New("no vote to remove")
	ErrAcceptanceRequired = errors.New("accept the bounty before submitting proof")
	ErrPostedBeforeBounty = errors.New("post must be on/after bounty creation")
	ErrPostedAtRequired   = errors.New("post timestamp could not be resolved")
	ErrInvalidPostedAt    = errors.New("posted_at must be an ISO-8601 timestamp")
)

// TimestampLookup resolves an external post's publish time from its
// normalized permalink. *instagram.Client satisfies it.
type TimestampLookup interface {
	FetchTimestamp(ctx context.Context, permalink string) (*time.Time, error)
}

type Policy struct {
	RequireAcceptance     bool
	RequirePostedAt       bool
	VerifiedVoteThreshold int
}

type Service struct {
	db     db.Querier
	lookup TimestampLookup
	policy Policy
}

func NewService(db db.Querier, lookup TimestampLookup, policy Policy) *Service {
	if policy.VerifiedVoteThreshold <= 0 {
		policy.VerifiedVoteThreshold = 3
	}
	return &Service{db: db, lookup: lookup, policy: policy}
}

// Accept records that the user is going after the bounty. Not idempotent:
// a second accept is a conflict, and acceptances are never revoked.
func (s *Service) Accept(ctx context.Context, bountyID, userID string) (Acceptance, error) {
	a := Acceptance{
		ID:       uuid.NewString(),
		BountyID: bountyID,
		UserID:   userID,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO bounty_acceptances (id, bounty_id, user_id)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, a.ID, a.BountyID, a.UserID)
	if err := row.Scan(&a.CreatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Acceptance{}, ErrAlreadyAccepted
		}
		if db.IsForeignKeyViolation(err) {
			return Acceptance{}, pgx.ErrNoRows
		}
		return Acceptance{}, err
	}
	return a, nil
}

func (s *Service) HasAccepted(ctx context.Context, bountyID, userID string) (bool, error) {
	var accepted bool
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM bounty_acceptances WHERE bounty_id=$1 AND user_id=$2)
	`, bountyID, userID)
	if err := row.Scan(&accepted); err != nil {
		return false, err
	}
	return accepted, nil
}

type SubmitInput struct {
	URL      string `json:"url"`
	PostedAt string `json:"posted_at"`
	Caption  string `json:"caption"`
}

// SubmitProof runs the verification pipeline in order: URL shape, normalize,
// acceptance policy, timestamp resolution, anti-backdating. The timestamp
// rule is checked up front for a descriptive error and enforced again inside
// the insert, so it cannot be raced around.
func (s *Service) SubmitProof(ctx context.Context, bountyID, userID string, input SubmitInput) (Submission, error) {
	permalink, err := instagram.Normalize(input.URL)
	if err != nil {
		return Submission{}, err
	}

	if s.policy.RequireAcceptance {
		accepted, err := s.HasAccepted(ctx, bountyID, userID)
		if err != nil {
			return Submission{}, err
		}
		if !accepted {
			return Submission{}, ErrAcceptanceRequired
		}
	}

	var postedAt *time.Time
	if input.PostedAt != "" {
		ts, err := time.Parse(time.RFC3339, input.PostedAt)
		if err != nil {
			return Submission{}, ErrInvalidPostedAt
		}
		utc := ts.UTC()
		postedAt = &utc
	} else if s.lookup != nil {
		ts, err := s.lookup.FetchTimestamp(ctx, permalink)
		if err != nil {
			log.Printf("oembed lookup failed for %s: %v", permalink, err)
		} else {
			postedAt = ts
		}
	}
	if postedAt == nil && s.policy.RequirePostedAt {
		return Submission{}, ErrPostedAtRequired
	}

	var bountyCreatedAt time.Time
	row := s.db.QueryRow(ctx, `SELECT created_at FROM bounties WHERE id=$1`, bountyID)
	if err := row.Scan(&bountyCreatedAt); err != nil {
		return Submission{}, err
	}
	if postedAt != nil && postedAt.Before(bountyCreatedAt) {
		return Submission{}, ErrPostedBeforeBounty
	}

	sub := Submission{
		ID:               uuid.NewString(),
		BountyID:         bountyID,
		UserID:           userID,
		MediaURL:         permalink,
		Caption:          input.Caption,
		ExternalPostedAt: postedAt,
	}
	row = s.db.QueryRow(ctx, `
		INSERT INTO submissions (id, bounty_id, user_id, media_url, caption, external_posted_at)
		SELECT $1, b.id, $3, $4, $5, $6
		FROM bounties b
		WHERE b.id = $2 AND ($6::timestamptz IS NULL OR $6::timestamptz >= b.created_at)
		RETURNING status, created_at
	`, sub.ID, sub.BountyID, sub.UserID, sub.MediaURL, sub.Caption, sub.ExternalPostedAt)
	if err := row.Scan(&sub.Status, &sub.CreatedAt); err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return Submission{}, ErrAlreadySubmitted
		case isRaisedException(err):
			return Submission{}, ErrPostedBeforeBounty
		case errors.Is(err, pgx.ErrNoRows) && postedAt != nil:
			// Guard condition failed after the pre-check passed.
			return Submission{}, ErrPostedBeforeBounty
		}
		return Submission{}, err
	}
	return sub, nil
}

// List returns a bounty's submissions with their tallies, most voted first,
// ties broken oldest first. The aggregate view is the primary source; on
// view failure the tally is rebuilt from the vote table and the result is
// marked Degraded.
func (s *Service) List(ctx context.Context, bountyID string) (SubmissionList, error) {
	subs, err := s.listFromView(ctx, `WHERE bounty_id=$1`, bountyID)
	if err == nil {
		return SubmissionList{Submissions: subs}, nil
	}
	log.Printf("submissions view unavailable, falling back to manual tally: %v", err)

	subs, err = s.listManual(ctx, `WHERE bounty_id=$1`, bountyID)
	if err != nil {
		return SubmissionList{}, err
	}
	return SubmissionList{Submissions: subs, Degraded: true}, nil
}

// ListByUser lists one user's submissions across bounties, same dual-source
// and ordering rules as List.
func (s *Service) ListByUser(ctx context.Context, userID string) (SubmissionList, error) {
	subs, err := s.listFromView(ctx, `WHERE user_id=$1`, userID)
	if err == nil {
		return SubmissionList{Submissions: subs}, nil
	}
	log.Printf("submissions view unavailable, falling back to manual tally: %v", err)

	subs, err = s.listManual(ctx, `WHERE user_id=$1`, userID)
	if err != nil {
		return SubmissionList{}, err
	}
	return SubmissionList{Submissions: subs, Degraded: true}, nil
}

const submissionColumns = `id, bounty_id, user_id, media_url, COALESCE(caption,''), status, external_posted_at, created_at`

func (s *Service) listFromView(ctx context.Context, where string, args ...any) ([]SubmissionWithVotes, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+submissionColumns+`, vote_count
		FROM v_submissions_with_votes
		`+where+`
		ORDER BY vote_count DESC, created_at ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []SubmissionWithVotes
	for rows.Next() {
		var sub SubmissionWithVotes
		err := rows.Scan(&sub.ID, &sub.BountyID, &sub.UserID, &sub.MediaURL, &sub.Caption,
			&sub.Status, &sub.ExternalPostedAt, &sub.CreatedAt, &sub.VoteCount)
		if err != nil {
			return nil, err
		}
		sub.Verified = sub.VoteCount >= s.policy.VerifiedVoteThreshold
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Service) listManual(ctx context.Context, where string, args ...any) ([]SubmissionWithVotes, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		`+where+`
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []SubmissionWithVotes
	var ids []string
	for rows.Next() {
		var sub SubmissionWithVotes
		err := rows.Scan(&sub.ID, &sub.BountyID, &sub.UserID, &sub.MediaURL, &sub.Caption,
			&sub.Status, &sub.ExternalPostedAt, &sub.CreatedAt)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
		ids = append(ids, sub.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}

	counts := map[string]int{}
	voteRows, err := s.db.Query(ctx, `
		SELECT submission_id, COUNT(*)::int
		FROM submission_votes
		WHERE submission_id = ANY($1)
		GROUP BY submission_id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer voteRows.Close()
	for voteRows.Next() {
		var id string
		var n int
		if err := voteRows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	if err := voteRows.Err(); err != nil {
		return nil, err
	}

	for i := range subs {
		subs[i].VoteCount = counts[subs[i].ID]
		subs[i].Verified = subs[i].VoteCount >= s.policy.VerifiedVoteThreshold
	}
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].VoteCount != subs[j].VoteCount {
			return subs[i].VoteCount > subs[j].VoteCount
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

// Vote records one user's vote and returns the authoritative tally.
func (s *Service) Vote(ctx context.Context, submissionID, userID string) (VoteTally, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO submission_votes (id, submission_id, user_id)
		VALUES ($1,$2,$3)
	`, uuid.NewString(), submissionID, userID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return VoteTally{}, ErrAlreadyVoted
		}
		if db.IsForeignKeyViolation(err) {
			return VoteTally{}, pgx.ErrNoRows
		}
		return VoteTally{}, err
	}
	return s.tally(ctx, submissionID, true)
}

// Unvote removes the user's vote. Removing a vote that was never cast is a
// conflict, so the tally can never be driven negative.
func (s *Service) Unvote(ctx context.Context, submissionID, userID string) (VoteTally, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM submission_votes WHERE submission_id=$1 AND user_id=$2
	`, submissionID, userID)
	if err != nil {
		return VoteTally{}, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		row := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM submissions WHERE id=$1)`, submissionID)
		if err := row.Scan(&exists); err != nil {
			return VoteTally{}, err
		}
		if !exists {
			return VoteTally{}, pgx.ErrNoRows
		}
		return VoteTally{}, ErrNotVoted
	}
	return s.tally(ctx, submissionID, false)
}

func (s *Service) tally(ctx context.Context, submissionID string, voted bool) (VoteTally, error) {
	var count int
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*)::int FROM submission_votes WHERE submission_id=$1
	`, submissionID)
	if err := row.Scan(&count); err != nil {
		return VoteTally{}, err
	}
	return VoteTally{
		SubmissionID: submissionID,
		VoteCount:    count,
		Verified:     count >= s.policy.VerifiedVoteThreshold,
		Voted:        voted,
	}, nil
}

// Status assembles the authenticated user's relationship to a bounty.
func (s *Service) Status(ctx context.Context, bountyID, userID string) (BountyUserStatus, error) {
	status := BountyUserStatus{VotedSubmissionIDs: []string{}}

	accepted, err := s.HasAccepted(ctx, bountyID, userID)
	if err != nil {
		return BountyUserStatus{}, err
	}
	status.Accepted = accepted

	subs, err := s.listFromView(ctx, `WHERE bounty_id=$1 AND user_id=$2`, bountyID, userID)
	if err != nil {
		log.Printf("submissions view unavailable, falling back to manual tally: %v", err)
		subs, err = s.listManual(ctx, `WHERE bounty_id=$1 AND user_id=$2`, bountyID, userID)
		if err != nil {
			return BountyUserStatus{}, err
		}
		status.Degraded = true
	}
	if len(subs) > 0 {
		status.Submission = &subs[0]
	}

	rows, err := s.db.Query(ctx, `
		SELECT v.submission_id
		FROM submission_votes v
		JOIN submissions sub ON sub.id = v.submission_id
		WHERE sub.bounty_id=$1 AND v.user_id=$2
	`, bountyID, userID)
	if err != nil {
		return BountyUserStatus{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return BountyUserStatus{}, err
		}
		status.VotedSubmissionIDs = append(status.VotedSubmissionIDs, id)
	}
	return status, rows.Err()
}

func isRaisedException(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "P0001"
}
