package validation

import (
	"errors"
	"net/mail"
)

// ValidateEmail checks an email claim before it is stored on a user.
// Empty is allowed since not every token carries one.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}

	// RFC 5321: total max 254 with @
	if len(email) > 254 {
		return errors.New("email address is too long (max 254 characters)")
	}

	_, err := mail.ParseAddress(email)
	if err != nil {
		return errors.New("invalid email address format")
	}

	return nil
}
