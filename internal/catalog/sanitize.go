package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxNameLen caps a single path segment or file title, measured in
// runes so multi-byte names are not cut mid-character.
const maxNameLen = 50

const illegalChars = `\/:*?"<>|`

// ShortID returns a six-character stable suffix derived from a remote
// id, used to disambiguate colliding or truncated names.
func ShortID(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:3])
}

// SanitizeName makes a remote name safe for common filesystems:
// illegal characters become underscores, newlines become spaces, and
// overlong names are truncated with a stable id-derived suffix so
// distinct remote names cannot collapse to the same truncation.
func SanitizeName(name, id string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 0x20:
			// skip other control characters
		case strings.ContainsRune(illegalChars, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), " .")
	if out == "" {
		return "untitled-" + ShortID(id)
	}
	runes := []rune(out)
	if len(runes) > maxNameLen {
		out = strings.TrimRight(string(runes[:maxNameLen]), " .") + "-" + ShortID(id)
	}
	return out
}
