package models

import "time"

// Session is one credential epoch. It is created on every issuance and
// deleted on signout, rotation or a failed refresh; it is never updated.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}
