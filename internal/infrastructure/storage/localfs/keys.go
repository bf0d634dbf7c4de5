package localfs

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SafeSegment folds a user supplied name into a portable key segment:
// "Délibération n°3.PDF" becomes "deliberation-n-3.pdf".
func SafeSegment(name string) string {
	folding := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folding, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-.")
	out = strings.ReplaceAll(out, "-.", ".")
	if out == "" {
		return "file"
	}
	return out
}

// Key joins sanitised segments into an object key.
func Key(segments ...string) string {
	safe := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		safe = append(safe, SafeSegment(segment))
	}
	return path.Join(safe...)
}
