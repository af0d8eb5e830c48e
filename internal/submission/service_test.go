package submission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tsullivan13/skate-bounty-app/internal/instagram"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

type fakeLookup struct {
	ts  *time.Time
	err error
}

func (f fakeLookup) FetchTimestamp(_ context.Context, _ string) (*time.Time, error) {
	return f.ts, f.err
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestAccept(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO bounty_acceptances`).
		WithArgs(pgxmock.AnyArg(), "bounty-1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	svc := NewService(mock, nil, Policy{})
	a, err := svc.Accept(context.Background(), "bounty-1", "user-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if a.BountyID != "bounty-1" || a.UserID != "user-1" {
		t.Fatalf("unexpected acceptance: %+v", a)
	}
}

func TestAcceptDuplicate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO bounty_acceptances`).
		WithArgs(pgxmock.AnyArg(), "bounty-1", "user-1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	svc := NewService(mock, nil, Policy{})
	if _, err := svc.Accept(context.Background(), "bounty-1", "user-1"); err != ErrAlreadyAccepted {
		t.Fatalf("expected ErrAlreadyAccepted, got %v", err)
	}
}

func TestAcceptUnknownBounty(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO bounty_acceptances`).
		WithArgs(pgxmock.AnyArg(), "missing", "user-1").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	svc := NewService(mock, nil, Policy{})
	if _, err := svc.Accept(context.Background(), "missing", "user-1"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestSubmitProofURLValidation(t *testing.T) {
	svc := NewService(nil, nil, Policy{})
	ctx := context.Background()

	cases := map[string]error{
		"":                                    instagram.ErrURLRequired,
		"https://example.com/p/ABC123/":       instagram.ErrNotInstagram,
		"https://www.instagram.com/some_user": instagram.ErrNotPostURL,
		"ftp://instagram.com/p/ABC123/":       instagram.ErrMalformedURL,
	}
	for raw, want := range cases {
		_, err := svc.SubmitProof(ctx, "bounty-1", "user-1", SubmitInput{URL: raw})
		if !errors.Is(err, want) {
			t.Fatalf("url %q: expected %v, got %v", raw, want, err)
		}
	}
}

func TestSubmitProofAcceptanceRequired(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM bounty_acceptances`).
		WithArgs("bounty-1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	svc := NewService(mock, nil, Policy{RequireAcceptance: true})
	_, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1",
		SubmitInput{URL: "https://www.instagram.com/p/ABC123/"})
	if err != ErrAcceptanceRequired {
		t.Fatalf("expected ErrAcceptanceRequired, got %v", err)
	}
}

func TestSubmitProofStoresNormalizedURL(t *testing.T) {
	mock := newMock(t)
	bountyCreated := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT created_at FROM bounties`).
		WithArgs("bounty-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(bountyCreated))
	mock.ExpectQuery(`INSERT INTO submissions`).
		WithArgs(pgxmock.AnyArg(), "bounty-1", "user-1", "https://www.instagram.com/p/ABC123/", "first try", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"status", "created_at"}).AddRow("pending", time.Now()))

	svc := NewService(mock, nil, Policy{})
	sub, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1", SubmitInput{
		URL:      "HTTP://Instagram.com/p/ABC123/?utm_source=share#frag",
		PostedAt: bountyCreated.Format(time.RFC3339),
		Caption:  "first try",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.MediaURL != "https://www.instagram.com/p/ABC123/" {
		t.Fatalf("expected canonical url, got %q", sub.MediaURL)
	}
	if sub.ExternalPostedAt == nil || !sub.ExternalPostedAt.Equal(bountyCreated) {
		t.Fatalf("expected posted_at preserved, got %v", sub.ExternalPostedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmitProofRejectsBackdated(t *testing.T) {
	mock := newMock(t)
	bountyCreated := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT created_at FROM bounties`).
		WithArgs("bounty-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(bountyCreated))

	svc := NewService(mock, nil, Policy{})
	_, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1", SubmitInput{
		URL:      "https://www.instagram.com/reel/XYZ789/",
		PostedAt: bountyCreated.Add(-time.Minute).Format(time.RFC3339),
	})
	if err != ErrPostedBeforeBounty {
		t.Fatalf("expected ErrPostedBeforeBounty, got %v", err)
	}
}

func TestSubmitProofInvalidPostedAt(t *testing.T) {
	svc := NewService(nil, nil, Policy{})
	_, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1", SubmitInput{
		URL:      "https://www.instagram.com/p/ABC123/",
		PostedAt: "yesterday",
	})
	if err != ErrInvalidPostedAt {
		t.Fatalf("expected ErrInvalidPostedAt, got %v", err)
	}
}

func TestSubmitProofLookupFailureDegrades(t *testing.T) {
	mock := newMock(t)
	bountyCreated := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT created_at FROM bounties`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(bountyCreated))
	mock.ExpectQuery(`INSERT INTO submissions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"status", "created_at"}).AddRow("pending", time.Now()))

	svc := NewService(mock, fakeLookup{err: errors.New("oembed down")}, Policy{})
	sub, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1",
		SubmitInput{URL: "https://www.instagram.com/p/ABC123/"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ExternalPostedAt != nil {
		t.Fatalf("expected nil posted_at after degraded lookup, got %v", sub.ExternalPostedAt)
	}
}

func TestSubmitProofRequirePostedAt(t *testing.T) {
	svc := NewService(nil, fakeLookup{}, Policy{RequirePostedAt: true})
	_, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1",
		SubmitInput{URL: "https://www.instagram.com/p/ABC123/"})
	if err != ErrPostedAtRequired {
		t.Fatalf("expected ErrPostedAtRequired, got %v", err)
	}
}

func TestSubmitProofLookupTimestampUsed(t *testing.T) {
	mock := newMock(t)
	bountyCreated := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	posted := bountyCreated.Add(48 * time.Hour)

	mock.ExpectQuery(`SELECT created_at FROM bounties`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(bountyCreated))
	mock.ExpectQuery(`INSERT INTO submissions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"status", "created_at"}).AddRow("pending", time.Now()))

	svc := NewService(mock, fakeLookup{ts: &posted}, Policy{})
	sub, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1",
		SubmitInput{URL: "https://www.instagram.com/tv/QRS456/"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ExternalPostedAt == nil || !sub.ExternalPostedAt.Equal(posted) {
		t.Fatalf("expected oembed timestamp, got %v", sub.ExternalPostedAt)
	}
}

func TestSubmitProofDuplicate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT created_at FROM bounties`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now().Add(-time.Hour)))
	mock.ExpectQuery(`INSERT INTO submissions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	svc := NewService(mock, nil, Policy{})
	_, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1",
		SubmitInput{URL: "https://www.instagram.com/p/ABC123/"})
	if err != ErrAlreadySubmitted {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmitProofTriggerEnforced(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT created_at FROM bounties`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now().Add(-time.Hour)))
	mock.ExpectQuery(`INSERT INTO submissions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "P0001", Message: "external_posted_at is before bounty creation"})

	svc := NewService(mock, nil, Policy{})
	_, err := svc.SubmitProof(context.Background(), "bounty-1", "user-1",
		SubmitInput{URL: "https://www.instagram.com/p/ABC123/"})
	if err != ErrPostedBeforeBounty {
		t.Fatalf("expected ErrPostedBeforeBounty, got %v", err)
	}
}

var viewColumns = []string{
	"id", "bounty_id", "user_id", "media_url", "caption", "status",
	"external_posted_at", "created_at", "vote_count",
}

func TestListFromView(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`FROM v_submissions_with_votes`).
		WithArgs("bounty-1").
		WillReturnRows(pgxmock.NewRows(viewColumns).
			AddRow("sub-1", "bounty-1", "user-1", "https://www.instagram.com/p/AAA/", "", "pending", nil, now.Add(-2*time.Hour), 4).
			AddRow("sub-2", "bounty-1", "user-2", "https://www.instagram.com/p/BBB/", "", "pending", nil, now, 1))

	svc := NewService(mock, nil, Policy{VerifiedVoteThreshold: 3})
	list, err := svc.List(context.Background(), "bounty-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Degraded {
		t.Fatalf("view path should not be degraded")
	}
	if len(list.Submissions) != 2 || list.Submissions[0].ID != "sub-1" {
		t.Fatalf("unexpected order: %+v", list.Submissions)
	}
	if !list.Submissions[0].Verified || list.Submissions[1].Verified {
		t.Fatalf("verified flags wrong: %+v", list.Submissions)
	}
}

func TestListFallbackAgreesWithView(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM v_submissions_with_votes`).
		WithArgs("bounty-1").
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectQuery(`FROM submissions`).
		WithArgs("bounty-1").
		WillReturnRows(pgxmock.NewRows(viewColumns[:8]).
			AddRow("sub-2", "bounty-1", "user-2", "https://www.instagram.com/p/BBB/", "", "pending", nil, now).
			AddRow("sub-1", "bounty-1", "user-1", "https://www.instagram.com/p/AAA/", "", "pending", nil, now.Add(-2*time.Hour)).
			AddRow("sub-3", "bounty-1", "user-3", "https://www.instagram.com/p/CCC/", "", "pending", nil, now.Add(-time.Hour)))
	mock.ExpectQuery(`FROM submission_votes`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"submission_id", "count"}).
			AddRow("sub-1", 4).
			AddRow("sub-3", 4).
			AddRow("sub-2", 1))

	svc := NewService(mock, nil, Policy{VerifiedVoteThreshold: 3})
	list, err := svc.List(context.Background(), "bounty-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !list.Degraded {
		t.Fatalf("fallback path must be marked degraded")
	}
	// vote_count desc, then created_at asc for the tie.
	got := []string{list.Submissions[0].ID, list.Submissions[1].ID, list.Submissions[2].ID}
	want := []string{"sub-1", "sub-3", "sub-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v want %v", got, want)
		}
	}
}

func TestVoteReturnsTally(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO submission_votes`).
		WithArgs(pgxmock.AnyArg(), "sub-1", "user-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\)::int FROM submission_votes`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	svc := NewService(mock, nil, Policy{VerifiedVoteThreshold: 3})
	tally, err := svc.Vote(context.Background(), "sub-1", "user-1")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if tally.VoteCount != 3 || !tally.Verified || !tally.Voted {
		t.Fatalf("unexpected tally: %+v", tally)
	}
}

func TestVoteDuplicate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO submission_votes`).
		WithArgs(pgxmock.AnyArg(), "sub-1", "user-1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	svc := NewService(mock, nil, Policy{})
	if _, err := svc.Vote(context.Background(), "sub-1", "user-1"); err != ErrAlreadyVoted {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
}

func TestUnvoteRoundTrip(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM submission_votes`).
		WithArgs("sub-1", "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\)::int FROM submission_votes`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	svc := NewService(mock, nil, Policy{VerifiedVoteThreshold: 3})
	tally, err := svc.Unvote(context.Background(), "sub-1", "user-1")
	if err != nil {
		t.Fatalf("unvote: %v", err)
	}
	if tally.VoteCount != 2 || tally.Verified || tally.Voted {
		t.Fatalf("unexpected tally: %+v", tally)
	}
}

func TestUnvoteWithoutVote(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM submission_votes`).
		WithArgs("sub-1", "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM submissions`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	svc := NewService(mock, nil, Policy{})
	if _, err := svc.Unvote(context.Background(), "sub-1", "user-1"); err != ErrNotVoted {
		t.Fatalf("expected ErrNotVoted, got %v", err)
	}
}

func TestUnvoteUnknownSubmission(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM submission_votes`).
		WithArgs("missing", "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM submissions`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	svc := NewService(mock, nil, Policy{})
	if _, err := svc.Unvote(context.Background(), "missing", "user-1"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestStatusFallbackWhenViewUnavailable(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM bounty_acceptances`).
		WithArgs("bounty-1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM v_submissions_with_votes`).
		WithArgs("bounty-1", "user-1").
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectQuery(`FROM submissions`).
		WithArgs("bounty-1", "user-1").
		WillReturnRows(pgxmock.NewRows(viewColumns[:8]).
			AddRow("sub-1", "bounty-1", "user-1", "https://www.instagram.com/p/AAA/", "", "pending", nil, now))
	mock.ExpectQuery(`FROM submission_votes`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"submission_id", "count"}).AddRow("sub-1", 2))
	mock.ExpectQuery(`SELECT v.submission_id`).
		WithArgs("bounty-1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"submission_id"}))

	svc := NewService(mock, nil, Policy{VerifiedVoteThreshold: 3})
	status, err := svc.Status(context.Background(), "bounty-1", "user-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Submission == nil || status.Submission.ID != "sub-1" {
		t.Fatalf("submission lost on fallback path: %+v", status)
	}
	if status.Submission.VoteCount != 2 {
		t.Fatalf("expected manual tally, got %+v", status.Submission)
	}
	if !status.Degraded {
		t.Fatalf("fallback path must be marked degraded")
	}
}

func TestStatus(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM bounty_acceptances`).
		WithArgs("bounty-1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM v_submissions_with_votes`).
		WithArgs("bounty-1", "user-1").
		WillReturnRows(pgxmock.NewRows(viewColumns).
			AddRow("sub-1", "bounty-1", "user-1", "https://www.instagram.com/p/AAA/", "", "pending", nil, now, 2))
	mock.ExpectQuery(`SELECT v.submission_id`).
		WithArgs("bounty-1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"submission_id"}).AddRow("sub-2"))

	svc := NewService(mock, nil, Policy{VerifiedVoteThreshold: 3})
	status, err := svc.Status(context.Background(), "bounty-1", "user-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Accepted || status.Submission == nil || status.Submission.ID != "sub-1" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(status.VotedSubmissionIDs) != 1 || status.VotedSubmissionIDs[0] != "sub-2" {
		t.Fatalf("unexpected voted ids: %+v", status.VotedSubmissionIDs)
	}
}
