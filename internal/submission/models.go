package submission

import "time"

type Acceptance struct {
	ID        string    `json:"id"`
	BountyID  string    `json:"bounty_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Submission struct {
	ID               string     `json:"id"`
	BountyID         string     `json:"bounty_id"`
	UserID           string     `json:"user_id"`
	MediaURL         string     `json:"media_url"`
	Caption          string     `json:"caption,omitempty"`
	Status           string     `json:"status"`
	ExternalPostedAt *time.Time `json:"external_posted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// SubmissionWithVotes carries the derived tally. VoteCount is computed from
// submission_votes on every read; Verified is a display policy over it.
type SubmissionWithVotes struct {
	Submission
	VoteCount int  `json:"vote_count"`
	Verified  bool `json:"verified"`
}

// SubmissionList flags when the tally came from the manual fallback path
// instead of the aggregate view.
type SubmissionList struct {
	Submissions []SubmissionWithVotes `json:"submissions"`
	Degraded    bool                  `json:"degraded,omitempty"`
}

// VoteTally is the authoritative post-mutation state returned by Vote and
// Unvote, so clients reconcile instead of guessing.
type VoteTally struct {
	SubmissionID string `json:"submission_id"`
	VoteCount    int    `json:"vote_count"`
	Verified     bool   `json:"verified"`
	Voted        bool   `json:"voted"`
}

// BountyUserStatus is the per-user view of one bounty: whether they accepted,
// their own submission if any, and which submissions they voted for. Degraded
// mirrors SubmissionList: set when the tally came from the manual fallback.
type BountyUserStatus struct {
	Accepted           bool                 `json:"accepted"`
	Submission         *SubmissionWithVotes `json:"submission,omitempty"`
	VotedSubmissionIDs []string             `json:"voted_submission_ids"`
	Degraded           bool                 `json:"degraded,omitempty"`
}
