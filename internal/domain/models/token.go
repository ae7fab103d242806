package models

import "time"

// TokenPair is an access/refresh pair bound to a single session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// TokenPayload is the verified content of an access or refresh token.
type TokenPayload struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// Tokens returns the denormalized form of p.
func (p TokenPair) Tokens() UserTokens {
	return UserTokens{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		SessionID:    p.SessionID,
	}
}
