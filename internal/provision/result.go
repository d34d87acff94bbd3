package provision

import (
	"errors"
	"time"

	"github.com/xkilldash9x/autoreg-cli/internal/store"
)

// Workflow stages, used for metrics labels and logs.
const (
	StageMailbox   = "mailbox"
	StageBrowser   = "browser"
	StageNavigate  = "navigate"
	StageFill      = "fill"
	StageSubmit    = "submit"
	StageInbox     = "inbox"
	StageExtract   = "extract"
	StageConfirm   = "confirm"
	StageCancelled = "cancelled"
	StagePanic     = "panic"
)

var (
	// ErrNoEmail ends an attempt whose inbox stayed empty for the whole poll.
	ErrNoEmail = errors.New("no email received before the timeout")
	// ErrNoLink ends an attempt when no received message yields a confirmation link.
	ErrNoLink = errors.New("could not extract a confirmation link from the received emails")
)

// AccountInfo is the identity of a provisioned account.
type AccountInfo struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Confirmed bool   `json:"confirmed"`
}

// Result is the outcome of one attempt. Exactly one of AccountInfo and Error
// is set; use Succeeded and Failed to build one.
type Result struct {
	Success     bool         `json:"success"`
	AccountInfo *AccountInfo `json:"accountInfo,omitempty"`
	Error       string       `json:"error,omitempty"`
	// Warnings lists problems that did not end the attempt, such as a form
	// submit that reported a fault before the confirmation email arrived anyway.
	Warnings  []string `json:"warnings,omitempty"`
	AttemptID string   `json:"attemptId,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(info AccountInfo) Result {
	return Result{Success: true, AccountInfo: &info}
}

// Failed builds a failed result. An empty message is replaced so the error
// field is never blank.
func Failed(msg string) Result {
	if msg == "" {
		msg = "unknown error"
	}
	return Result{Error: msg}
}

// Valid reports whether r has exactly one of its two shapes.
func (r Result) Valid() bool {
	if r.Success {
		return r.AccountInfo != nil && r.Error == ""
	}
	return r.AccountInfo == nil && r.Error != ""
}

// Record converts the result into its persisted form.
func (r Result) Record(at time.Time) store.Record {
	rec := store.Record{
		AttemptID: r.AttemptID,
		Success:   r.Success,
		Error:     r.Error,
		Warnings:  r.Warnings,
		CreatedAt: at,
	}
	if r.AccountInfo != nil {
		rec.Email = r.AccountInfo.Email
		rec.Username = r.AccountInfo.Username
		rec.Password = r.AccountInfo.Password
		rec.Confirmed = r.AccountInfo.Confirmed
	}
	return rec
}
