package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
)

// evasionsScript runs before any page script in every document of the tab.
const evasionsScript = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  if (!window.chrome) { window.chrome = { runtime: {} }; }
  const langs = %s;
  Object.defineProperty(navigator, 'languages', { get: () => langs });
})();`

// Persona is the browser identity presented to the registration site.
type Persona struct {
	UserAgent string
	Languages []string
	Locale    string
	Timezone  string
}

// PersonaFromConfig derives the persona from the browser settings.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	ua := cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	p := Persona{UserAgent: ua, Locale: cfg.Locale, Timezone: cfg.Timezone}
	if cfg.Locale != "" {
		p.Languages = []string{cfg.Locale}
		if lang, _, found := strings.Cut(cfg.Locale, "-"); found {
			p.Languages = append(p.Languages, lang)
		}
	} else {
		p.Languages = []string{"en-US", "en"}
	}
	return p
}

// AcceptLanguage renders Languages as an Accept-Language header value.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

func (p Persona) script() string {
	quoted := make([]string, len(p.Languages))
	for i, lang := range p.Languages {
		quoted[i] = fmt.Sprintf("%q", lang)
	}
	return fmt.Sprintf(evasionsScript, "["+strings.Join(quoted, ",")+"]")
}

// Apply builds the CDP actions that present the persona on the current tab.
func (p Persona) Apply(logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser persona",
		zap.String("user_agent", p.UserAgent),
		zap.String("locale", p.Locale),
		zap.String("timezone", p.Timezone),
	)

	override := emulation.SetUserAgentOverride(p.UserAgent)
	if len(p.Languages) > 0 {
		override = override.WithAcceptLanguage(p.AcceptLanguage())
	}
	tasks := chromedp.Tasks{
		override,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(p.script()).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage(),
		}))
	}
	return tasks
}
