package account

import (
	"gorm.io/gorm"
)

// Account is a registered caller of the gateway. Every account may manage the
// denylist; there is no role model.
// @Description account model
type Account struct {
	gorm.Model
	// Identifier is a username or an email address (unique)
	Identifier string `json:"identifier" gorm:"uniqueIndex;not null"`
	// Password hash (hidden from JSON)
	Password string `json:"-" gorm:"not null"`
}

func NewAccount(identifier, passwordHash string) *Account {
	return &Account{
		Identifier: identifier,
		Password:   passwordHash,
	}
}
