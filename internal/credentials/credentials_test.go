package credentials

import (
	"math/rand"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usernamePattern = regexp.MustCompile(`^user_[0-9a-z]{6}[0-9]{4}$`)
	passwordPattern = regexp.MustCompile(`^Pass_[0-9a-z]{6}_[1-9][0-9]{2}!$`)
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestUsername(t *testing.T) {
	g := NewWithSource(rand.NewSource(1), fixedClock(1700000004321))

	for i := 0; i < 200; i++ {
		u := g.Username()
		require.Regexp(t, usernamePattern, u)
		assert.Equal(t, "4321", u[len(u)-4:], "suffix comes from the clock")
	}
}

func TestPassword(t *testing.T) {
	g := NewWithSource(rand.NewSource(7), time.Now)

	for i := 0; i < 500; i++ {
		p := g.Password()
		require.Regexp(t, passwordPattern, p)
		assert.Regexp(t, `[A-Z]`, p)
		assert.Regexp(t, `[a-z]`, p)
		assert.Regexp(t, `[0-9]`, p)
		assert.Contains(t, p, "!")
	}
}

func TestPackageLevelGenerators(t *testing.T) {
	assert.Regexp(t, usernamePattern, GenerateUsername())
	assert.Regexp(t, passwordPattern, GeneratePassword())
}

func TestFor(t *testing.T) {
	g := NewWithSource(rand.NewSource(3), fixedClock(12))
	c := g.For("user1@example.test")
	assert.Equal(t, "user1@example.test", c.Email)
	assert.Regexp(t, usernamePattern, c.Username)
	assert.Equal(t, "0012", c.Username[len(c.Username)-4:])
	assert.Regexp(t, passwordPattern, c.Password)
}

func TestLastDigits(t *testing.T) {
	assert.Equal(t, "4321", LastDigits(time.UnixMilli(987654321), 4))
	assert.Equal(t, "0007", LastDigits(time.UnixMilli(7), 4))
}

func TestGenerator_ConcurrentUse(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = g.Username()
				_ = g.Password()
			}
		}()
	}
	wg.Wait()
}
