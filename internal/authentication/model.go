package authentication

import (
	"time"
)

// RefreshTokenRecord is one issued refresh token. Only the hex SHA-256 of the
// signed token is stored.
type RefreshTokenRecord struct {
	ID        uint      `gorm:"primarykey"`
	AccountID uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

// Claims is the decoded identity of a verified access token.
type Claims struct {
	AccountID  uint
	Identifier string
	ExpiresAt  time.Time
}

// TokenPair is what login and registration hand back to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
