package account

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	IDENTIFIER_MAXIMUM_LENGTH = 255
	// bcrypt ignores everything past 72 bytes.
	PASSWORD_MAXIMUM_BYTES = 72
)

var (
	ErrIdentifierRequired          = errors.New("identifier is required")
	ErrIdentifierTooLong           = fmt.Errorf("identifier should be at most %d characters", IDENTIFIER_MAXIMUM_LENGTH)
	ErrIdentifierHasWhitespace     = errors.New("identifier must not contain whitespace")
	ErrPasswordRequired            = errors.New("password is required")
	ErrPasswordShouldBeAtMostNByte = fmt.Errorf("password should be at most %d bytes", PASSWORD_MAXIMUM_BYTES)
)

// NormalizeIdentifier trims surrounding whitespace.
func NormalizeIdentifier(identifier string) string {
	return strings.TrimSpace(identifier)
}

func CheckIdentifier(identifier string) error {
	if identifier == "" {
		return ErrIdentifierRequired
	}
	if len([]rune(identifier)) > IDENTIFIER_MAXIMUM_LENGTH {
		return ErrIdentifierTooLong
	}
	if strings.IndexFunc(identifier, unicode.IsSpace) >= 0 {
		return ErrIdentifierHasWhitespace
	}
	return nil
}

func CheckPassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) > PASSWORD_MAXIMUM_BYTES {
		return ErrPasswordShouldBeAtMostNByte
	}
	return nil
}

// IsValidationError reports whether err came from one of the credential checks.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrIdentifierRequired),
		errors.Is(err, ErrIdentifierTooLong),
		errors.Is(err, ErrIdentifierHasWhitespace),
		errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrPasswordShouldBeAtMostNByte):
		return true
	}
	return false
}
