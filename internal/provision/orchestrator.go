// Package provision runs the account provisioning workflow: a disposable
// mailbox, a signup form driven in a headless browser, and the confirmation
// link that arrives by email.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/browser"
	"github.com/xkilldash9x/autoreg-cli/internal/config"
	"github.com/xkilldash9x/autoreg-cli/internal/credentials"
	"github.com/xkilldash9x/autoreg-cli/internal/extract"
	"github.com/xkilldash9x/autoreg-cli/internal/form"
	"github.com/xkilldash9x/autoreg-cli/internal/humanoid"
	"github.com/xkilldash9x/autoreg-cli/internal/mailbox"
)

const teardownTimeout = 15 * time.Second

// Deps are the collaborators of an Orchestrator. Recorder and Credentials are
// optional.
type Deps struct {
	Mailbox     MailboxProvider
	Browser     BrowserLauncher
	Form        FormDriver
	Credentials *credentials.Generator
	Recorder    Recorder
}

// Orchestrator performs single provisioning attempts. It holds no per-attempt
// state, so one value may run any number of attempts concurrently.
type Orchestrator struct {
	mail     MailboxProvider
	browser  BrowserLauncher
	form     FormDriver
	creds    *credentials.Generator
	recorder Recorder
	logger   *zap.Logger

	target       config.TargetConfig
	pollAttempts int
	pollInterval time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator from explicit collaborators.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		deps.Mailbox == nil ||
		deps.Browser == nil ||
		deps.Form == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if deps.Credentials == nil {
		deps.Credentials = credentials.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	attempts := cfg.Mailbox.PollAttempts
	if attempts <= 0 {
		attempts = mailbox.DefaultPollAttempts
	}
	interval := cfg.Mailbox.PollInterval
	if interval <= 0 {
		interval = mailbox.DefaultPollInterval
	}

	return &Orchestrator{
		mail:         deps.Mailbox,
		browser:      deps.Browser,
		form:         deps.Form,
		creds:        deps.Credentials,
		recorder:     deps.Recorder,
		logger:       logger.Named("provision"),
		target:       cfg.Target,
		pollAttempts: attempts,
		pollInterval: interval,
		sleep:        humanoid.Sleep,
	}, nil
}

// NewFromConfig wires the production collaborators: the mail.tm client, a
// chromedp launcher and the humanized form driver.
func NewFromConfig(cfg *config.Config, logger *zap.Logger, recorder Recorder) (*Orchestrator, error) {
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	driver := form.NewDriver(cfg.Form, humanoid.New(cfg.Browser.Humanoid), logger)
	return New(cfg, logger, Deps{
		Mailbox:  MailboxFrom(mailbox.NewClientFromConfig(cfg.Mailbox, logger)),
		Browser:  BrowserFrom(browser.NewLauncher(cfg.Browser, logger)),
		Form:     driver,
		Recorder: recorder,
	})
}

// attempt carries the state of one run through the workflow.
type attempt struct {
	o        *Orchestrator
	logger   *zap.Logger
	warnings []string
}

func (a *attempt) warn(stage, msg string) {
	a.logger.Warn(msg, zap.String("stage", stage))
	a.o.recorder.StageWarning(stage)
	a.warnings = append(a.warnings, msg)
}

func (a *attempt) fail(ctx context.Context, stage string, err error) Result {
	if ctx.Err() != nil && stage != StagePanic {
		stage = StageCancelled
		err = fmt.Errorf("attempt cancelled: %w", ctx.Err())
	}
	a.logger.Error("Provisioning attempt failed", zap.String("stage", stage), zap.Error(err))
	a.o.recorder.StageFailed(stage)
	res := Failed(err.Error())
	res.Warnings = a.warnings
	return res
}

// CreateAndConfirmAccount runs one complete attempt and always returns a
// Result. The browser, once launched, is closed exactly once on every exit
// path, including panics.
func (o *Orchestrator) CreateAndConfirmAccount(ctx context.Context) (res Result) {
	start := time.Now()
	a := &attempt{o: o, logger: o.logger}
	if id, ok := AttemptIDFrom(ctx); ok {
		a.logger = a.logger.With(zap.String("attempt_id", id))
	}

	o.recorder.AttemptStarted()
	defer func() {
		o.recorder.AttemptFinished(res.Success, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			res = a.fail(ctx, StagePanic, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	// 1. Mailbox. A failure here ends the attempt before any browser starts.
	inbox, err := o.mail.CreateAccount(ctx)
	if err != nil {
		return a.fail(ctx, StageMailbox, err)
	}
	a.logger.Info("Mailbox created", zap.String("email", inbox.Address()))

	// 2. Credentials bound to the mailbox address.
	creds := o.creds.For(inbox.Address())
	a.logger.Info("Generated credentials", zap.String("email", creds.Email), zap.String("username", creds.Username))

	// 3. Browser.
	page, err := o.browser.Launch(ctx)
	if err != nil {
		return a.fail(ctx, StageBrowser, fmt.Errorf("browser launch failed: %w", err))
	}
	defer o.teardown(ctx, a.logger, page)

	// 4. Registration page.
	if err := page.Navigate(ctx, o.target.RegistrationURL); err != nil {
		return a.fail(ctx, StageNavigate, fmt.Errorf("loading registration page failed: %w", err))
	}

	// 5. Fill and submit. Neither outcome stops the attempt: the page may have
	// submitted on its own even when the driver reports a fault.
	if !o.form.FillRegistrationForm(ctx, page, creds) {
		a.warn(StageFill, "form fill reported a failure; continuing to the inbox")
	}
	if !o.form.SubmitRegistrationForm(ctx, page) {
		a.warn(StageSubmit, "form submit reported a failure; continuing to the inbox")
	}

	// 6. Settle, then poll.
	if err := o.sleep(ctx, o.target.PostSubmitWait); err != nil {
		return a.fail(ctx, StageInbox, err)
	}
	a.logger.Info("Waiting for confirmation email",
		zap.Int("max_attempts", o.pollAttempts), zap.Duration("interval", o.pollInterval))
	messages, err := inbox.CheckInbox(ctx, o.pollAttempts, o.pollInterval)
	if err != nil {
		return a.fail(ctx, StageInbox, fmt.Errorf("inbox polling stopped: %w", err))
	}
	o.recorder.InboxPolled(len(messages))

	// 7. Nothing arrived.
	if len(messages) == 0 {
		return a.fail(ctx, StageInbox, ErrNoEmail)
	}

	// 8-9. First confirmation link wins.
	link, err := a.findLink(ctx, inbox, messages)
	if err != nil {
		return a.fail(ctx, StageExtract, err)
	}
	if link == "" {
		return a.fail(ctx, StageExtract, ErrNoLink)
	}

	// 10. Confirm in the same browser.
	a.logger.Info("Visiting confirmation link", zap.String("link", link))
	if err := page.Navigate(ctx, link); err != nil {
		return a.fail(ctx, StageConfirm, fmt.Errorf("visiting confirmation link failed: %w", err))
	}
	if err := o.sleep(ctx, o.target.PostConfirmWait); err != nil {
		return a.fail(ctx, StageConfirm, err)
	}

	// 11.
	a.logger.Info("Account created and confirmed", zap.String("email", creds.Email))
	res = Succeeded(AccountInfo{
		Email:     creds.Email,
		Username:  creds.Username,
		Password:  creds.Password,
		Confirmed: true,
	})
	res.Warnings = a.warnings
	return res
}

// findLink walks messages in provider order, fetching details only for those
// that classify as confirmation emails. It returns "" when none yields a link.
// A failed detail fetch ends the search with an error.
func (a *attempt) findLink(ctx context.Context, inbox Inbox, messages []mailbox.Message) (string, error) {
	for i := range messages {
		msg := &messages[i]
		if !extract.IsConfirmationEmail(msg) {
			a.logger.Debug("Skipping message", zap.String("id", msg.ID), zap.String("subject", msg.Subject))
			continue
		}

		detail, err := inbox.GetMessageDetails(ctx, msg.ID)
		if err != nil {
			return "", fmt.Errorf("fetching confirmation email failed: %w", err)
		}
		shape := extract.Describe(detail)
		a.logger.Debug("Fetched message",
			zap.String("id", msg.ID),
			zap.String("kind", shape.Kind),
			zap.Bool("has_html", shape.HasHTML),
			zap.Bool("has_text", shape.HasText),
			zap.Strings("keys", shape.Keys))

		if link, ok := extract.ExtractConfirmationLink(detail); ok && link != "" {
			return link, nil
		}
		a.logger.Info("No link in confirmation email", zap.String("id", msg.ID))
	}
	return "", nil
}

// teardown closes the page with a context that outlives a cancelled attempt.
func (o *Orchestrator) teardown(ctx context.Context, logger *zap.Logger, page Page) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while closing browser", zap.Any("panic", r))
		}
	}()
	if err := page.Close(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Error closing browser", zap.Error(err))
	}
}

type attemptIDKey struct{}

// WithAttemptID tags ctx with an attempt identifier for log correlation.
func WithAttemptID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, attemptIDKey{}, id)
}

// AttemptIDFrom returns the attempt identifier carried by ctx.
func AttemptIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(attemptIDKey{}).(string)
	return id, ok && id != ""
}
