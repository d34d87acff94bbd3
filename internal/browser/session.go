package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a locator matches nothing.
var ErrNotFound = errors.New("browser: element not found")

// Locator identifies an element: a CSS selector or XPath expression, plus
// which match to use when several exist.
type Locator struct {
	Query string
	XPath bool
	Index int
}

// CSS returns a locator for the first element matching a CSS selector.
func CSS(query string) Locator { return Locator{Query: query} }

// XPath returns a locator for the first element matching an XPath expression.
func XPath(query string) Locator { return Locator{Query: query, XPath: true} }

// ParseLocator reads a configured selector. An "xpath:" prefix selects XPath.
func ParseLocator(s string) Locator {
	if rest, ok := strings.CutPrefix(s, "xpath:"); ok {
		return XPath(rest)
	}
	return CSS(s)
}

// Nth returns the same query targeting the i-th match (zero based).
func (l Locator) Nth(i int) Locator {
	l.Index = i
	return l
}

func (l Locator) String() string {
	prefix := ""
	if l.XPath {
		prefix = "xpath:"
	}
	if l.Index > 0 {
		return fmt.Sprintf("%s%s[%d]", prefix, l.Query, l.Index)
	}
	return prefix + l.Query
}

func (l Locator) by() chromedp.QueryOption {
	if l.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// Session is one browser tab owned by a single provisioning attempt.
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
	logger      *zap.Logger
	idle        *idleTracker

	closeOnce sync.Once
	closeErr  error
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// run executes actions on the tab, bounded by both the tab's lifetime and ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits until network activity settles, all within
// the navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	s.logger.Info("Navigating", zap.String("url", url))
	s.idle.reset()
	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	waitCtx, waitCancel := context.WithCancel(s.ctx)
	defer waitCancel()
	stop := context.AfterFunc(navCtx, waitCancel)
	defer stop()
	if err := s.idle.wait(waitCtx); err != nil {
		return fmt.Errorf("waiting for network idle on %s: %w", url, err)
	}
	return nil
}

// Count reports how many elements match the locator's query right now.
func (s *Session) Count(ctx context.Context, loc Locator) (int, error) {
	nodes, err := s.nodes(ctx, loc)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (s *Session) nodes(ctx context.Context, loc Locator) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(loc.Query, &nodes, loc.by(), chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("querying %s: %w", loc, err)
	}
	return nodes, nil
}

func (s *Session) node(ctx context.Context, loc Locator) (*cdp.Node, error) {
	nodes, err := s.nodes(ctx, loc)
	if err != nil {
		return nil, err
	}
	if loc.Index >= len(nodes) {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return nodes[loc.Index], nil
}

// WaitFor blocks until the locator matches, or timeout elapses.
func (s *Session) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, err := s.Count(waitCtx, loc)
		if err == nil && n > loc.Index {
			return nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("waiting for %s: %w", loc, ErrNotFound)
		case <-ticker.C:
		}
	}
}

// Focus scrolls the element into view and gives it keyboard focus.
func (s *Session) Focus(ctx context.Context, loc Locator) error {
	n, err := s.node(ctx, loc)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(n.NodeID).Do(ctx); err != nil {
			return err
		}
		return dom.Focus().WithNodeID(n.NodeID).Do(ctx)
	}))
}

// Click scrolls the element into view and clicks its center.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	n, err := s.node(ctx, loc)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(n.NodeID).Do(ctx); err != nil {
			return err
		}
		return chromedp.MouseClickNode(n).Do(ctx)
	}))
}

// DispatchKey sends one raw key event to the focused element.
func (s *Session) DispatchKey(ctx context.Context, ev *input.DispatchKeyEventParams) error {
	return s.run(ctx, ev)
}

// Close shuts the browser down. It is safe to call more than once; only the
// first call does any work.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()

		select {
		case err := <-done:
			s.closeErr = err
		case <-ctx.Done():
			s.closeErr = ctx.Err()
		}
		s.cancel()
		s.allocCancel()
		s.logger.Info("Browser session closed")
	})
	return s.closeErr
}
