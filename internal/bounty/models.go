package bounty

import "time"

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Reward kinds. A bounty can carry a numeric amount, free-form text, or
// nothing at all.
const (
	RewardNone    = "none"
	RewardNumeric = "numeric"
	RewardText    = "text"
)

type Reward struct {
	Kind   string  `json:"kind"`
	Amount float64 `json:"amount,omitempty"`
	Type   string  `json:"type,omitempty"`
	Text   string  `json:"text,omitempty"`
}

type Bounty struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Trick     string     `json:"trick"`
	Reward    Reward     `json:"reward"`
	Status    string     `json:"status"`
	SpotID    string     `json:"spot_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DerivedStatus reports "expired" for open bounties past their deadline.
// Expiry is never written back to the row.
func (b Bounty) DerivedStatus(now time.Time) string {
	if b.Status == StatusOpen && b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
		return "expired"
	}
	return b.Status
}
