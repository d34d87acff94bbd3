// Filename: browser/manager_test.go
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
)

func TestLauncherFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		l := NewLauncher(config.BrowserConfig{Headless: true}, nil)
		flags := l.flags()

		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["no-sandbox"])
		assert.Equal(t, true, flags["disable-setuid-sandbox"])
		assert.Equal(t, false, flags["enable-automation"])
		assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
	})

	t.Run("configured args override", func(t *testing.T) {
		l := NewLauncher(config.BrowserConfig{
			Headless: true,
			Args:     []string{"--window-size=1280,800", "mute-audio", "--headless=new", "="},
		}, nil)
		flags := l.flags()

		assert.Equal(t, "1280,800", flags["window-size"])
		assert.Equal(t, true, flags["mute-audio"])
		assert.Equal(t, "new", flags["headless"])
		_, blank := flags[""]
		assert.False(t, blank)
	})

	t.Run("options include user agent", func(t *testing.T) {
		l := NewLauncher(config.BrowserConfig{}, nil)
		opts := l.AllocatorOptions()
		assert.Greater(t, len(opts), len(l.flags()), "defaults, flags and user agent are all present")
	})

	t.Run("navigation timeout has a floor", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, NewLauncher(config.BrowserConfig{NavigationTimeout: time.Second}, nil).navigationTimeout())
		assert.Equal(t, 90*time.Second, NewLauncher(config.BrowserConfig{NavigationTimeout: 90 * time.Second}, nil).navigationTimeout())
	})
}

func TestLocator(t *testing.T) {
	css := ParseLocator(`input[name="email"]`)
	assert.False(t, css.XPath)
	assert.Equal(t, `input[name="email"]`, css.String())

	xp := ParseLocator(`xpath://button[contains(., 'Sign up')]`)
	assert.True(t, xp.XPath)
	assert.Equal(t, `//button[contains(., 'Sign up')]`, xp.Query)
	assert.Equal(t, `xpath://button[contains(., 'Sign up')]`, xp.String())

	second := CSS(`input[type="password"]`).Nth(1)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, `input[type="password"][1]`, second.String())
}

func TestIdleTracker(t *testing.T) {
	now := time.Unix(0, 0)
	tr := newIdleTracker()
	tr.now = func() time.Time { return now }
	tr.reset()

	assert.False(t, tr.settled(), "quiet period has not elapsed")
	now = now.Add(600 * time.Millisecond)
	assert.True(t, tr.settled())

	for _, id := range []network.RequestID{"1", "2", "3"} {
		tr.started(id)
	}
	now = now.Add(time.Second)
	assert.False(t, tr.settled(), "three requests in flight")

	tr.finished("1")
	assert.False(t, tr.settled(), "idle clock restarts when traffic drops")
	now = now.Add(500 * time.Millisecond)
	assert.True(t, tr.settled(), "two in flight is idle enough")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr.started("4")
	assert.ErrorIs(t, tr.wait(ctx), context.Canceled)
}

// TestSessionAgainstRealBrowser drives a local form with a real Chrome. It is
// skipped when no browser is installed.
func TestSessionAgainstRealBrowser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	found := false
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("no Chrome binary available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><form>
			<input name="email"><input type="password"><input type="password">
			<button type="submit">Sign up</button></form></body></html>`))
	}))
	defer srv.Close()

	cfg := config.NewDefaultConfig().Browser
	l := NewLauncher(cfg, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s, err := l.Launch(ctx)
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close(context.Background())) }()

	require.NoError(t, s.Navigate(ctx, srv.URL))

	n, err := s.Count(ctx, CSS(`input[type="password"]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count(ctx, CSS(`input[name="confirmPassword"]`))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.WaitFor(ctx, XPath(`//button[contains(., 'Sign up')]`), 5*time.Second))
	require.NoError(t, s.Focus(ctx, CSS(`input[name="email"]`)))
	assert.ErrorIs(t, s.Click(ctx, CSS(`#missing`)), ErrNotFound)
}
