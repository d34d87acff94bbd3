// Package form fills and submits a signup form on a live page.
package form

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/browser"
	"github.com/xkilldash9x/autoreg-cli/internal/config"
	"github.com/xkilldash9x/autoreg-cli/internal/credentials"
	"github.com/xkilldash9x/autoreg-cli/internal/fallback"
	"github.com/xkilldash9x/autoreg-cli/internal/humanoid"
)

// Page is the slice of a browser tab the driver needs.
type Page interface {
	WaitFor(ctx context.Context, loc browser.Locator, timeout time.Duration) error
	Count(ctx context.Context, loc browser.Locator) (int, error)
	Focus(ctx context.Context, loc browser.Locator) error
	Click(ctx context.Context, loc browser.Locator) error
	humanoid.KeyDispatcher
}

// Driver types credentials into a signup form like a person would and submits it.
type Driver struct {
	cfg      config.FormConfig
	humanoid *humanoid.Humanoid
	logger   *zap.Logger
}

// NewDriver creates a Driver. A zero FieldWaitTimeout defaults to 30s.
func NewDriver(cfg config.FormConfig, h *humanoid.Humanoid, logger *zap.Logger) *Driver {
	if cfg.FieldWaitTimeout <= 0 {
		cfg.FieldWaitTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{cfg: cfg, humanoid: h, logger: logger.Named("form")}
}

// FillRegistrationForm types the email, username and password, fills a
// password confirmation field when one exists and ticks the terms checkbox
// when one exists. It reports false on any browser fault and never panics.
func (d *Driver) FillRegistrationForm(ctx context.Context, page Page, creds credentials.Credentials) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic while filling form", zap.Any("panic", r))
			ok = false
		}
	}()

	if err := d.fill(ctx, page, creds); err != nil {
		d.logger.Error("Error filling form", zap.Error(err))
		return false
	}
	d.logger.Info("Form filled", zap.String("username", creds.Username))
	return true
}

func (d *Driver) fill(ctx context.Context, page Page, creds credentials.Credentials) error {
	h := d.humanoid.Config()
	fields := []struct {
		name  string
		sel   string
		value string
		pause config.MsRange
	}{
		{"email", d.cfg.EmailSelector, creds.Email, h.FirstFieldPause},
		{"username", d.cfg.UsernameSelector, creds.Username, h.FieldPause},
		{"password", d.cfg.PasswordSelector, creds.Password, h.FieldPause},
	}

	for _, f := range fields {
		if err := d.humanoid.Pause(ctx, f.pause); err != nil {
			return err
		}
		loc := browser.ParseLocator(f.sel)
		if err := page.WaitFor(ctx, loc, d.cfg.FieldWaitTimeout); err != nil {
			return fmt.Errorf("%s field: %w", f.name, err)
		}
		if err := d.typeInto(ctx, page, loc, f.value); err != nil {
			return fmt.Errorf("%s field: %w", f.name, err)
		}
	}

	confirm, err := fallback.First(ctx, d.confirmStrategies(page))
	if err != nil {
		return fmt.Errorf("locating password confirmation: %w", err)
	}
	if confirm.Matched() {
		d.logger.Debug("Filling password confirmation", zap.String("locator", confirm.Value.String()))
		if err := d.humanoid.Pause(ctx, h.FieldPause); err != nil {
			return err
		}
		if err := d.typeInto(ctx, page, confirm.Value, creds.Password); err != nil {
			return fmt.Errorf("password confirmation: %w", err)
		}
	} else {
		d.logger.Info("No password confirmation field found, continuing")
	}

	if d.cfg.TermsSelector != "" {
		terms := browser.ParseLocator(d.cfg.TermsSelector)
		n, err := page.Count(ctx, terms)
		if err != nil {
			return fmt.Errorf("locating terms checkbox: %w", err)
		}
		if n > 0 {
			if err := d.humanoid.Pause(ctx, h.TermsPause); err != nil {
				return err
			}
			if err := page.Click(ctx, terms); err != nil {
				return fmt.Errorf("terms checkbox: %w", err)
			}
		}
	}
	return nil
}

// confirmStrategies tries the named confirmation selectors in order and then
// falls back to the nth generic password input.
func (d *Driver) confirmStrategies(page Page) []fallback.Strategy[browser.Locator] {
	var strategies []fallback.Strategy[browser.Locator]
	for _, sel := range d.cfg.ConfirmSelectors {
		strategies = append(strategies, presence(page, sel, browser.ParseLocator(sel)))
	}
	if d.cfg.ConfirmFallback != "" {
		loc := browser.ParseLocator(d.cfg.ConfirmFallback).Nth(d.cfg.ConfirmFallbackNth)
		strategies = append(strategies, presence(page, loc.String(), loc))
	}
	return strategies
}

// SubmitRegistrationForm clicks the first submit control found, or presses
// Enter when there is none. A missing button is not a failure; only a browser
// fault reports false.
func (d *Driver) SubmitRegistrationForm(ctx context.Context, page Page) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic while submitting form", zap.Any("panic", r))
			ok = false
		}
	}()

	if err := d.submit(ctx, page); err != nil {
		d.logger.Error("Error submitting form", zap.Error(err))
		return false
	}
	return true
}

func (d *Driver) submit(ctx context.Context, page Page) error {
	h := d.humanoid.Config()

	strategies := make([]fallback.Strategy[browser.Locator], 0, len(d.cfg.SubmitSelectors))
	for _, sel := range d.cfg.SubmitSelectors {
		strategies = append(strategies, presence(page, sel, browser.ParseLocator(sel)))
	}

	button, err := fallback.First(ctx, strategies)
	if err != nil {
		return err
	}

	if button.Matched() {
		d.logger.Info("Submitting form", zap.String("strategy", button.Name))
		if err := d.humanoid.Pause(ctx, h.SubmitPause); err != nil {
			return err
		}
		return page.Click(ctx, button.Value)
	}

	d.logger.Info("No submit control found, pressing Enter")
	if err := d.humanoid.Pause(ctx, h.EnterPause); err != nil {
		return err
	}
	return d.humanoid.PressEnter(ctx, page)
}

func (d *Driver) typeInto(ctx context.Context, page Page, loc browser.Locator, value string) error {
	if err := page.Focus(ctx, loc); err != nil {
		return err
	}
	return d.humanoid.Type(ctx, page, value)
}

// presence is a strategy that matches when loc has a match on the page.
func presence(page Page, name string, loc browser.Locator) fallback.Strategy[browser.Locator] {
	return fallback.Strategy[browser.Locator]{
		Name: name,
		Try: func(ctx context.Context) (browser.Locator, bool, error) {
			n, err := page.Count(ctx, loc)
			if err != nil {
				return browser.Locator{}, false, err
			}
			return loc, n > loc.Index, nil
		},
	}
}
