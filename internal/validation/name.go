package validation

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const MaxNameLength = 255

var (
	ErrNameRequired = errors.New("name is required")
	ErrNameTooLong  = errors.New("name is too long (max 255 bytes)")
	ErrNameInvalid  = errors.New("name contains invalid characters")
)

// NormalizeName trims surrounding whitespace and converts to Unicode NFC so that
// visually identical names compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName normalizes a file or folder name and checks it can live in a path.
func ValidateName(name string) (string, error) {
	n := NormalizeName(name)

	if n == "" {
		return "", ErrNameRequired
	}

	if len(n) > MaxNameLength {
		return "", ErrNameTooLong
	}

	if !utf8.ValidString(n) || n == "." || n == ".." || strings.ContainsAny(n, "/\\\x00") {
		return "", ErrNameInvalid
	}

	return n, nil
}
