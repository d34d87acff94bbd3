// Package extract decides which inbox messages look like signup confirmations
// and digs the confirmation link out of whatever body shape the provider sent.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/xkilldash9x/autoreg-cli/internal/fallback"
)

// A backslash ends a match.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\\]+`)

// bodyFields are consulted in order when the payload is an object.
var bodyFields = []string{"html", "text", "body", "content", "intro"}

// linkMarkers identify a string property that probably carries a link.
var linkMarkers = []string{"http", "href", "<a"}

// linkKeywords rank candidate URLs; the first keyword with a match wins.
var linkKeywords = []string{"confirm", "verify", "activate", "validation"}

// ExtractConfirmationLink returns the most plausible confirmation URL in a
// message detail. payload may be raw JSON ([]byte or json.RawMessage), a plain
// string body, or a parsed Payload. It never panics; unusable input yields
// ok=false.
func ExtractConfirmationLink(payload interface{}) (link string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			link, ok = "", false
		}
	}()

	var p Payload
	switch v := payload.(type) {
	case []byte:
		p = ParsePayload(v)
	case json.RawMessage:
		p = ParsePayload(v)
	case string:
		p = TextPayload(v)
	case Payload:
		p = v
	case *Payload:
		if v == nil {
			return "", false
		}
		p = *v
	default:
		return "", false
	}

	body, found := ResolveBody(p)
	if !found {
		return "", false
	}
	return SelectLink(urlPattern.FindAllString(body, -1))
}

// ResolveBody picks the text to search for links.
func ResolveBody(p Payload) (string, bool) {
	switch p.Kind {
	case KindText:
		return p.Text, true
	case KindObject:
	default:
		return "", false
	}

	for _, name := range bodyFields {
		if f, ok := p.Field(name); ok {
			if text, ok := f.Text(); ok {
				return text, true
			}
		}
	}

	linkish, ok := fallback.FirstOf(p.Fields, func(f Field) bool {
		s, isString := f.String()
		if !isString {
			return false
		}
		for _, marker := range linkMarkers {
			if strings.Contains(s, marker) {
				return true
			}
		}
		return false
	})
	if ok {
		s, _ := linkish.String()
		return s, true
	}

	return p.Flatten(), true
}

// SelectLink chooses among URLs in document order: the first one containing a
// confirmation keyword (keywords tried in priority order), otherwise the first
// URL.
func SelectLink(urls []string) (string, bool) {
	if len(urls) == 0 {
		return "", false
	}
	for _, keyword := range linkKeywords {
		if u, ok := fallback.FirstOf(urls, func(u string) bool {
			return strings.Contains(strings.ToLower(u), keyword)
		}); ok {
			return u, true
		}
	}
	return urls[0], true
}
