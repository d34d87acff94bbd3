package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
)

func TestPersonaFromConfig(t *testing.T) {
	p := PersonaFromConfig(config.BrowserConfig{Locale: "de-DE", Timezone: "Europe/Berlin"})
	assert.Equal(t, config.DefaultUserAgent, p.UserAgent)
	assert.Equal(t, []string{"de-DE", "de"}, p.Languages)
	assert.Equal(t, "de-DE,de;q=0.9", p.AcceptLanguage())

	p = PersonaFromConfig(config.BrowserConfig{UserAgent: "custom/1.0"})
	assert.Equal(t, "custom/1.0", p.UserAgent)
	assert.Equal(t, []string{"en-US", "en"}, p.Languages)
	assert.Empty(t, p.Locale)
}

func TestPersonaApply(t *testing.T) {
	logger := zaptest.NewLogger(t)

	full := Persona{UserAgent: "ua", Languages: []string{"fr-FR", "fr"}, Locale: "fr-FR", Timezone: "Europe/Paris"}
	assert.Len(t, full.Apply(logger), 5)

	bare := Persona{UserAgent: "ua"}
	assert.Len(t, bare.Apply(logger), 2, "user agent and script only")
}

func TestPersonaScript(t *testing.T) {
	p := Persona{Languages: []string{"en-GB", "en"}}
	script := p.script()
	assert.Contains(t, script, `const langs = ["en-GB","en"];`)
	assert.Contains(t, script, "navigator, 'webdriver'")
}
