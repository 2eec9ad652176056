package domain

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ErrInvalidRoomName = errors.New("invalid room name")

// stripMarks decomposes to NFD and drops the combining marks, so "café"
// sanitizes the same as "cafe".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeRoomName normalizes a user-entered room name to the restricted
// identity alphabet: lowercase ascii letters and digits with single hyphen
// separators, no leading or trailing hyphen. An empty result is invalid.
func SanitizeRoomName(name string) (RoomName, error) {
	lowered := strings.ToLower(name)
	folded, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		// Malformed input sanitizes as-is; the alphabet filter below
		// drops anything that is not ascii anyway.
		folded = lowered
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	out := b.String()
	if out == "" {
		return "", ErrInvalidRoomName
	}
	return RoomName(out), nil
}
