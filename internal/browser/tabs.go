package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ErrLoadTimeout is returned when an auxiliary tab does not finish loading
// within its budget
var ErrLoadTimeout = errors.New("auxiliary tab load timed out")

// Tab is a background auxiliary page opened for one extraction and closed
// immediately after, success or failure
type Tab struct {
	session  *Session
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
	closed   bool
}

// OpenTab opens url in a background tab and waits for it to finish loading,
// bounded by loadTimeout. The caller must Close the tab regardless of the
// outcome of any subsequent extraction.
func (s *Session) OpenTab(ctx context.Context, url string, loadTimeout time.Duration) (*Tab, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	browserCtx := s.browserCtx
	s.mu.Unlock()

	var targetID target.ID
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		id, err := target.CreateTarget(url).
			WithBackground(true).
			Do(runCtx)
		if err != nil {
			return err
		}
		targetID = id
		return nil
	})); err != nil {
		return nil, fmt.Errorf("failed to open auxiliary tab: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(targetID))

	tab := &Tab{
		session:  s,
		ctx:      tabCtx,
		cancel:   tabCancel,
		targetID: targetID,
	}

	loaded := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			select {
			case loaded <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		tab.Close()
		return nil, fmt.Errorf("failed to attach auxiliary tab: %w", err)
	}

	// The load event may have fired before we attached; check readiness
	// directly before waiting for the listener
	var readyState string
	if err := chromedp.Run(tabCtx,
		chromedp.Evaluate("document.readyState", &readyState),
	); err == nil && readyState == "complete" {
		s.logger.Debug().Str("url", url).Msg("Auxiliary tab already loaded")
		return tab, nil
	}

	select {
	case <-loaded:
		s.logger.Debug().Str("url", url).Msg("Auxiliary tab loaded")
		return tab, nil
	case <-time.After(loadTimeout):
		tab.Close()
		return nil, fmt.Errorf("%w after %s: %s", ErrLoadTimeout, loadTimeout, url)
	case <-ctx.Done():
		tab.Close()
		return nil, ctx.Err()
	}
}

// Evaluate runs an expression in the tab and decodes its value into out
func (t *Tab) Evaluate(ctx context.Context, expression string, out interface{}) error {
	timedCtx, cancel := context.WithTimeout(t.ctx, 15*time.Second)
	defer cancel()

	return chromedp.Run(timedCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		result, exception, err := runtime.Evaluate(expression).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(runCtx)
		if err != nil {
			return fmt.Errorf("tab evaluation failed: %w", err)
		}
		if exception != nil {
			return fmt.Errorf("tab script threw: %s", exception.Text)
		}
		if out != nil && result != nil && result.Value != nil {
			if err := json.Unmarshal(result.Value, out); err != nil {
				return fmt.Errorf("failed to decode tab result: %w", err)
			}
		}
		return nil
	}))
}

// HTML returns the tab's full document HTML
func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.Evaluate(ctx, "document.documentElement.outerHTML", &html); err != nil {
		return "", err
	}
	return html, nil
}

// URL returns the tab's current location, which may differ from the opened
// URL after redirects
func (t *Tab) URL(ctx context.Context) (string, error) {
	var url string
	if err := t.Evaluate(ctx, "window.location.href", &url); err != nil {
		return "", err
	}
	return url, nil
}

// Close tears the tab down. Safe to call more than once.
func (t *Tab) Close() {
	if t.closed {
		return
	}
	t.closed = true

	t.session.mu.Lock()
	browserCtx := t.session.browserCtx
	t.session.mu.Unlock()

	if browserCtx != nil {
		closeCtx, cancel := context.WithTimeout(browserCtx, 5*time.Second)
		if err := chromedp.Run(closeCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
			return target.CloseTarget(t.targetID).Do(runCtx)
		})); err != nil {
			t.session.logger.Debug().Err(err).Msg("Auxiliary tab close reported error")
		}
		cancel()
	}

	t.cancel()
}
