package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// navSignalAttr is the DOM attribute the main-world shim writes the captured
// URL to. Attributes are the only channel visible from both the page's world
// and the isolated agent world.
const navSignalAttr = "data-colligo-nav"

// ErrNoInterceptedURL is returned when no outbound navigation was captured
// within the polling budget
var ErrNoInterceptedURL = errors.New("no outbound navigation intercepted")

// interceptShimJS replaces the page's navigation primitives with wrappers
// that record the first absolute URL instead of navigating. Originals are
// saved once so repeated installs stay idempotent, and window.open returns a
// stub window so page scripts that call close() or focus() on the result do
// not throw.
const interceptShimJS = `(() => {
	const doc = document.documentElement;
	doc.removeAttribute('` + navSignalAttr + `');
	if (!window.__colligoSaved) {
		window.__colligoSaved = {
			open: window.open,
			assign: window.location.assign.bind(window.location),
			replace: window.location.replace.bind(window.location)
		};
	}
	const capture = (url) => {
		if (typeof url === 'string' && /^https?:\/\//i.test(url) && !doc.getAttribute('` + navSignalAttr + `')) {
			doc.setAttribute('` + navSignalAttr + `', url);
		}
	};
	window.open = (url) => {
		capture(url);
		return { close: () => {}, focus: () => {} };
	};
	try {
		window.location.assign = (url) => { capture(url); };
		window.location.replace = (url) => { capture(url); };
	} catch (e) {
		// Some engines keep location methods non-writable; window.open
		// coverage is still in place.
	}
	return true;
})()`

// interceptCleanupJS restores the saved originals and clears the signal
// attribute
const interceptCleanupJS = `(() => {
	document.documentElement.removeAttribute('` + navSignalAttr + `');
	if (window.__colligoSaved) {
		window.open = window.__colligoSaved.open;
		try {
			window.location.assign = window.__colligoSaved.assign;
			window.location.replace = window.__colligoSaved.replace;
		} catch (e) {}
		delete window.__colligoSaved;
	}
	return true;
})()`

// readNavSignalJS reads the captured URL, if any, from the agent world
const readNavSignalJS = `document.documentElement.getAttribute('` + navSignalAttr + `') || ''`

// PrepareInterception installs the navigation shim in the host page's main
// world. Must run before triggering the action expected to navigate.
func (s *Session) PrepareInterception(ctx context.Context) error {
	var ok bool
	if err := s.EvaluateMain(ctx, interceptShimJS, &ok); err != nil {
		return fmt.Errorf("failed to install navigation shim: %w", err)
	}
	s.logger.Debug().Msg("Navigation interception armed")
	return nil
}

// CleanupInterception restores the host page's original navigation
// primitives. Always runs after an interception attempt, captured or not.
func (s *Session) CleanupInterception(ctx context.Context) error {
	var ok bool
	if err := s.EvaluateMain(ctx, interceptCleanupJS, &ok); err != nil {
		return fmt.Errorf("failed to remove navigation shim: %w", err)
	}
	return nil
}

// PollInterceptedURL polls the signal attribute from the isolated agent world
// until a URL appears or the attempt budget runs out
func (s *Session) PollInterceptedURL(ctx context.Context, interval time.Duration, attempts int) (string, error) {
	for i := 0; i < attempts; i++ {
		var captured string
		if err := s.EvaluateAgentValue(ctx, readNavSignalJS, &captured); err != nil {
			return "", err
		}
		if captured != "" {
			s.logger.Debug().Str("url", captured).Msg("Outbound navigation intercepted")
			return captured, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
	return "", ErrNoInterceptedURL
}

// ScanExternalLink is the fallback when interception captures nothing: scan
// the detail panel's HTML for the first absolute link pointing off the host
// domain
func ScanExternalLink(html, hostDomain string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse panel HTML: %w", err)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !isExternalURL(href, hostDomain) {
			return true
		}
		found = href
		return false
	})

	if found == "" {
		return "", ErrNoInterceptedURL
	}
	return found, nil
}

// isExternalURL reports whether raw is an absolute http(s) URL whose host is
// outside hostDomain
func isExternalURL(raw, hostDomain string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if hostDomain == "" {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	domain := strings.ToLower(hostDomain)
	return host != domain && !strings.HasSuffix(host, "."+domain)
}
