package browser

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
)

const defaultNavigationTimeout = 60 * time.Second

// Launcher starts one isolated headless browser per provisioning attempt.
// Attempts never share a browser process, cookies or storage.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewLauncher creates a Launcher for the given browser configuration.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger.Named("browser")}
}

// Launch starts a fresh browser process and returns a session on its first tab.
// The caller owns the session and must Close it.
func (l *Launcher) Launch(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	logger := l.logger.With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.AllocatorOptions()...)

	contextOpts := []chromedp.ContextOption{
		chromedp.WithErrorf(logger.Sugar().Debugf),
	}
	if l.cfg.Debug {
		contextOpts = append(contextOpts, chromedp.WithLogf(logger.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, contextOpts...)

	s := &Session{
		id:          id,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		navTimeout:  l.navigationTimeout(),
		logger:      logger,
		idle:        newIdleTracker(),
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx, network.Enable(), PersonaFromConfig(l.cfg).Apply(logger)); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}
	s.idle.listen(tabCtx)

	logger.Info("Browser session started", zap.Bool("headless", l.cfg.Headless))
	return s, nil
}

func (l *Launcher) navigationTimeout() time.Duration {
	if l.cfg.NavigationTimeout < defaultNavigationTimeout {
		return defaultNavigationTimeout
	}
	return l.cfg.NavigationTimeout
}

// AllocatorOptions assembles the flags for a headless, sandbox-free browser
// that does not announce automation.
func (l *Launcher) AllocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions[:] {
		opts = append(opts, opt)
	}

	flags := l.flags()
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	ua := l.cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	opts = append(opts, chromedp.UserAgent(ua))

	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// flags returns the command-line switches layered over chromedp's defaults.
// Later sources win: built-ins, then platform needs, then configured args.
func (l *Launcher) flags() map[string]interface{} {
	flags := map[string]interface{}{
		"headless":               l.cfg.Headless,
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
		"disable-extensions":     true,
		"no-sandbox":             true,
		"disable-setuid-sandbox": true,
	}
	if runtime.GOOS == "linux" {
		flags["disable-dev-shm-usage"] = true
	}

	for _, arg := range l.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}
