package models

import "time"

// User is the locally registered account. Tokens and SessionID are
// denormalized copies of the latest issuance and are never used for
// verification.
type User struct {
	ID        string
	Email     string
	PassHash  []byte
	Name      string
	Birthday  string
	AvatarURL string
	OriginURL string

	AccessToken  string
	RefreshToken string
	SessionID    string

	CreatedAt time.Time
}

// Profile is the public part of a user returned to clients.
type Profile struct {
	Name     string
	Email    string
	Birthday string
}

// Profile returns the public projection of u.
func (u *User) Profile() Profile {
	return Profile{
		Name:     u.Name,
		Email:    u.Email,
		Birthday: u.Birthday,
	}
}

// UserTokens is the denormalized token state written back to a user record.
type UserTokens struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}
