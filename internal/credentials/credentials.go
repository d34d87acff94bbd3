// Package credentials generates the throwaway identities used for each provisioning attempt.
package credentials

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Credentials is the identity submitted to the signup form. It is a plain value
// and is never modified after creation.
type Credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Generator produces usernames and passwords. The zero value is not usable; call New.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New returns a Generator seeded from the clock.
func New() *Generator {
	return NewWithSource(rand.NewSource(time.Now().UnixNano()), time.Now)
}

// NewWithSource returns a Generator with an explicit randomness source and clock.
func NewWithSource(src rand.Source, now func() time.Time) *Generator {
	return &Generator{rng: rand.New(src), now: now}
}

// Username returns "user_" followed by six base-36 characters and the last four
// digits of the current Unix millisecond timestamp.
func (g *Generator) Username() string {
	return "user_" + g.randomBase36(6) + LastDigits(g.now(), 4)
}

// Password returns "Pass_<6 base-36>_<100..999>!". It always contains upper and
// lower case letters, digits and punctuation.
func (g *Generator) Password() string {
	g.mu.Lock()
	n := 100 + g.rng.Intn(900)
	g.mu.Unlock()
	return fmt.Sprintf("Pass_%s_%d!", g.randomBase36(6), n)
}

// For builds a full credential set around the given mailbox address.
func (g *Generator) For(email string) Credentials {
	return Credentials{Email: email, Username: g.Username(), Password: g.Password()}
}

// Intn exposes the generator's randomness for callers that synthesize related
// identifiers, such as mailbox local parts.
func (g *Generator) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// RandomBase36 returns n random lower-case base-36 characters.
func (g *Generator) RandomBase36(n int) string {
	return g.randomBase36(n)
}

// Now reports the generator's clock.
func (g *Generator) Now() time.Time {
	return g.now()
}

func (g *Generator) randomBase36(n int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(base36[g.rng.Intn(len(base36))])
	}
	return sb.String()
}

// LastDigits returns the final n decimal digits of t in Unix milliseconds,
// left-padded with zeros.
func LastDigits(t time.Time, n int) string {
	ms := strconv.FormatInt(t.UnixMilli(), 10)
	if len(ms) >= n {
		return ms[len(ms)-n:]
	}
	return strings.Repeat("0", n-len(ms)) + ms
}

var defaultGenerator = New()

// GenerateUsername returns a username from the package generator.
func GenerateUsername() string { return defaultGenerator.Username() }

// GeneratePassword returns a password from the package generator.
func GeneratePassword() string { return defaultGenerator.Password() }
