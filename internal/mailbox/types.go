package mailbox

import (
	"errors"
	"fmt"
	"time"
)

// Address is a sender or recipient as reported by the provider.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Message is the summary entry returned by an inbox listing. An empty Subject
// means the message cannot be classified.
type Message struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	From      Address   `json:"from"`
	Intro     string    `json:"intro"`
	Seen      bool      `json:"seen"`
	CreatedAt time.Time `json:"createdAt"`
}

// Domain is one of the provider's receiving domains.
type Domain struct {
	ID       string `json:"id"`
	Domain   string `json:"domain"`
	IsActive bool   `json:"isActive"`
}

// Account is the provider-side mailbox record.
type Account struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type tokenResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

var (
	// ErrNotAuthenticated is returned when a session has no bearer token. It
	// signals a usage error and is never worth retrying.
	ErrNotAuthenticated = errors.New("mailbox: session is not authenticated")
	// ErrNoDomains is returned when the provider lists no usable domain.
	ErrNoDomains = errors.New("mailbox: provider returned no domains")
	// ErrEmptyToken is returned when the token endpoint answers without a token.
	ErrEmptyToken = errors.New("mailbox: provider returned an empty token")
)

// CreationError reports a failed mailbox creation. Step names the provider
// call that failed: "domains", "account" or "token".
type CreationError struct {
	Step string
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("mailbox creation failed at %s: %v", e.Step, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// StatusError is returned for any non-2xx provider response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
