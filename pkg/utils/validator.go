package utils

import "regexp"

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// SanitizeString strips control characters from host-supplied text. Mail
// clients occasionally leak raw header bytes into subjects and sender names.
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
