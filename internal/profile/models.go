package profile

import "time"

// Profile is the public identity for a user, created lazily. Handle may be
// empty until the user claims one; callers fall back to a truncated user id
// for display.
type Profile struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
