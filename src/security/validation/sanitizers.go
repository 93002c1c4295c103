package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPartnerIDLength counts runes, not bytes.
const MaxPartnerIDLength = 64

var ErrInvalidPartnerID = errors.New("invalid partner id")

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1 // Drop the rune
	}, s)
}

// SanitizePartnerID trims surrounding whitespace from a partner id taken from
// a path or body. Ids are otherwise opaque: anything printable is kept as is,
// and ids carrying control or invisible characters are refused rather than
// rewritten so two spellings never reach the same partner.
func SanitizePartnerID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPartnerID)
	}
	if !utf8.ValidString(id) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidPartnerID)
	}
	if n := utf8.RuneCountInString(id); n > MaxPartnerIDLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidPartnerID, MaxPartnerIDLength)
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("%w: %q contains a non-printable character", ErrInvalidPartnerID, id)
		}
	}
	return id, nil
}
