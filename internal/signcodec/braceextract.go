package signcodec

import (
	"regexp"
	"strings"

	"github.com/MatchaCake/livecore/internal/model"
)

// ExtractBraceJSON locates marker in html and walks forward from the
// first '{' after it, tracking string/escape state, until braces balance.
// It returns the raw JSON substring including both outer braces.
func ExtractBraceJSON(html, marker string) (string, error) {
	idx := strings.Index(html, marker)
	if idx < 0 {
		return "", model.New(model.KindParse, "marker not found: "+marker)
	}
	rest := html[idx+len(marker):]
	start := strings.IndexByte(rest, '{')
	if start < 0 {
		return "", model.New(model.KindParse, "no json object after marker: "+marker)
	}
	rest = rest[start:]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return rest[:i+1], nil
			}
		}
	}
	return "", model.New(model.KindParse, "unbalanced braces after marker: "+marker)
}

// UnescapeTwice reverses a double backslash-escape pass some platforms
// apply to embedded JSON strings (e.g. Douyu's roomInfo blob).
func UnescapeTwice(s string) string {
	r := strings.NewReplacer(`\"`, `"`, `\\`, `\`)
	return r.Replace(r.Replace(s))
}

var fastPathRe = regexp.MustCompile(`room_id\s*:\s*(\d+)`)

// FastRoomIDFallback is the regex fast path used when brace-balanced
// extraction of the full blob fails but a bare room_id is still present.
func FastRoomIDFallback(html string) (string, bool) {
	m := fastPathRe.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return m[1], true
}
