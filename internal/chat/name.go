package chat

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the maximum display name length in runes.
const MaxNameLength = 32

// NormalizeName turns a client-supplied display name into its canonical
// form: NFC-normalised, control characters removed, surrounding space trimmed
// and truncated to MaxNameLength runes. Names that end up empty or are not
// valid UTF-8 fail with ErrHandshakeMalformed.
func NormalizeName(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", fmt.Errorf("%w: name is not valid UTF-8", ErrHandshakeMalformed)
	}

	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, norm.NFC.String(raw))
	name = strings.TrimSpace(name)

	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrHandshakeMalformed)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	return name, nil
}
