package extract

import (
	"strings"

	"github.com/xkilldash9x/autoreg-cli/internal/mailbox"
)

var confirmationKeywords = []string{
	"confirm",
	"verify",
	"activate",
	"welcome",
	"registration",
	"instruction",
}

// IsConfirmationEmail reports whether a message subject reads like a signup
// confirmation. Messages without a subject are never confirmations.
func IsConfirmationEmail(msg *mailbox.Message) bool {
	if msg == nil || msg.Subject == "" {
		return false
	}
	subject := strings.ToLower(msg.Subject)
	for _, kw := range confirmationKeywords {
		if strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}

// Shape summarizes a payload for logging.
type Shape struct {
	Kind    string   `json:"kind"`
	HasHTML bool     `json:"has_html"`
	HasText bool     `json:"has_text"`
	Keys    []string `json:"keys,omitempty"`
}

// Describe reports the structure of a raw message detail without its content.
func Describe(data []byte) Shape {
	p := ParsePayload(data)
	shape := Shape{Kind: p.Kind.String()}
	if p.Kind == KindObject {
		_, shape.HasHTML = p.Field("html")
		_, shape.HasText = p.Field("text")
		shape.Keys = p.Keys()
	}
	return shape
}
