// Package user models marketplace participants and the trust/XP summary
// fields derived from the ledgers in package ledger.
package user

import "time"

// Role is a user's fixed participation role.
type Role string

const (
	RolePoster  Role = "poster"
	RoleHustler Role = "hustler"
	RoleAdmin   Role = "admin"
)

// User is a marketplace participant. XPTotal and CurrentStreak are derived
// read models maintained by the Worker Fleet from the XP ledger; they are
// never the system of record themselves.
type User struct {
	ID            string
	Role          Role
	TrustTier     int // 0-5
	XPTotal       int64
	Level         int
	CurrentStreak int64
	LastActiveAt  time.Time
	ArchivedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Archived reports whether the user has been soft-deleted.
func (u User) Archived() bool {
	return u.ArchivedAt != nil
}
