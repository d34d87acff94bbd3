package provision

import (
	"context"
	"time"

	"github.com/xkilldash9x/autoreg-cli/internal/browser"
	"github.com/xkilldash9x/autoreg-cli/internal/credentials"
	"github.com/xkilldash9x/autoreg-cli/internal/form"
	"github.com/xkilldash9x/autoreg-cli/internal/mailbox"
)

// MailboxProvider creates authenticated disposable mailboxes.
type MailboxProvider interface {
	CreateAccount(ctx context.Context) (Inbox, error)
}

// Inbox is an authenticated mailbox owned by one attempt.
type Inbox interface {
	Address() string
	CheckInbox(ctx context.Context, maxAttempts int, delay time.Duration) ([]mailbox.Message, error)
	GetMessageDetails(ctx context.Context, id string) ([]byte, error)
}

// BrowserLauncher starts an isolated browser for one attempt.
type BrowserLauncher interface {
	Launch(ctx context.Context) (Page, error)
}

// Page is a browser tab the orchestrator can navigate, fill and close.
type Page interface {
	form.Page
	Navigate(ctx context.Context, url string) error
	Close(ctx context.Context) error
}

// FormDriver fills and submits the signup form. Both calls report success as a
// bool and must not return errors.
type FormDriver interface {
	FillRegistrationForm(ctx context.Context, page form.Page, creds credentials.Credentials) bool
	SubmitRegistrationForm(ctx context.Context, page form.Page) bool
}

// Recorder receives attempt telemetry. *monitoring.Metrics implements it.
type Recorder interface {
	AttemptStarted()
	AttemptFinished(success bool, d time.Duration)
	StageFailed(stage string)
	StageWarning(stage string)
	InboxPolled(messages int)
}

type nopRecorder struct{}

func (nopRecorder) AttemptStarted() {}
func (nopRecorder) AttemptFinished(bool, time.Duration) {}
func (nopRecorder) StageFailed(string) {}
func (nopRecorder) StageWarning(string) {}
func (nopRecorder) InboxPolled(int) {}

// MailboxFrom adapts a mailbox client.
func MailboxFrom(c *mailbox.Client) MailboxProvider { return mailboxProvider{c} }

type mailboxProvider struct{ client *mailbox.Client }

func (p mailboxProvider) CreateAccount(ctx context.Context) (Inbox, error) {
	s, err := p.client.CreateAccount(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BrowserFrom adapts a chromedp launcher.
func BrowserFrom(l *browser.Launcher) BrowserLauncher { return browserLauncher{l} }

type browserLauncher struct{ launcher *browser.Launcher }

func (b browserLauncher) Launch(ctx context.Context) (Page, error) {
	s, err := b.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
