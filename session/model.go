package session

import "time"

// Identity is the verified actor a session belongs to.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsZero reports whether id is the zero Identity.
func (id Identity) IsZero() bool { return id == Identity{} }

// Session is the client-held credential bundle. ExpiresAt is absolute and
// independent of the tokens' own expiry.
type Session struct {
	Identity     Identity
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}
