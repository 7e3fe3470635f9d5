package messaging

import (
	"fmt"
	"strings"
)

// E.164 allows at most 15 digits. Anything under 8 is a local extension or a typo.
const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// CanonicalizePhone normalizes a phone number to E.164. Formatting characters are dropped and a
// bare ten-digit number is treated as North American.
func CanonicalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", raw)
	}
	if !strings.HasPrefix(raw, "+") && len(d) == 10 {
		d = "1" + d
	}
	if len(d) < minPhoneDigits || len(d) > maxPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q must have between %d and %d digits", raw, minPhoneDigits, maxPhoneDigits)
	}
	return "+" + d, nil
}
