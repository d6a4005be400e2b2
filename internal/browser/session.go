package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/rpc"
)

const (
	// pushBinding is the CDP binding the page-side agent calls to push a
	// response envelope back across the isolation boundary
	pushBinding = "colligoPush"

	// agentWorldName names the isolated script world the worker agent runs
	// in. The host page cannot see the agent's functions; only the DOM is
	// shared between the two worlds.
	agentWorldName = "colligo_agent"
)

// ErrNotStarted is returned when a session operation runs before Start
var ErrNotStarted = errors.New("browser session not started")

// Session owns the Chrome browser the whole pipeline runs against: the host
// tab the worker agent is bound to, the isolated agent world, the CDP push
// binding, and auxiliary tab lifecycles.
type Session struct {
	config *common.BrowserConfig
	logger arbor.ILogger

	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc

	hostCtx    context.Context
	hostCancel context.CancelFunc

	agentWorldID runtime.ExecutionContextID

	pushHandler func(rpc.Envelope)

	initialized bool
	mu          sync.Mutex
}

// NewSession creates an unstarted browser session
func NewSession(config *common.BrowserConfig, logger arbor.ILogger) *Session {
	return &Session{
		config: config,
		logger: logger,
	}
}

// OnPush registers the handler invoked for every envelope the agent pushes
// through the CDP binding. Must be set before AttachHost.
func (s *Session) OnPush(handler func(rpc.Envelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushHandler = handler
}

// Start launches Chrome and verifies it responds
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return fmt.Errorf("browser session already started")
	}

	opts := s.buildAllocatorOptions()

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, opts...)
	s.allocatorCancel = allocatorCancel

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			s.logger.Debug().Msgf("chromedp: "+format, args...)
		}),
	)
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel

	startupTimeout := s.config.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = 30 * time.Second
	}

	testCtx, testCancel := context.WithTimeout(browserCtx, startupTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		s.shutdownLocked()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	s.initialized = true
	s.logger.Info().
		Bool("headless", s.config.Headless).
		Str("user_data_dir", s.config.UserDataDir).
		Msg("Browser session started")

	return nil
}

// buildAllocatorOptions creates Chrome allocator options
func (s *Session) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(s.config.UserAgent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.WindowSize(s.config.WindowWidth, s.config.WindowHeight),
	}

	// User data directory carries the authenticated session the listing
	// page requires
	if s.config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.config.UserDataDir))
	}

	if s.config.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	return opts
}

// boundedHost derives a context for running chromedp actions against the host
// tab, carrying the caller's deadline when one is set. Actions must run on the
// host tab's context to reach the right target, but without the caller's
// deadline a wedged page would stall its caller indefinitely.
func boundedHost(hostCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := callerCtx.Deadline(); ok {
		return context.WithDeadline(hostCtx, deadline)
	}
	return context.WithCancel(hostCtx)
}

// AttachHost opens the host tab at the given URL, wires the push binding and
// provisions the isolated agent world
func (s *Session) AttachHost(ctx context.Context, url string) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.hostCancel != nil {
		s.hostCancel()
		s.hostCtx = nil
		s.hostCancel = nil
	}

	hostCtx, hostCancel := chromedp.NewContext(s.browserCtx)
	s.hostCtx = hostCtx
	s.hostCancel = hostCancel
	handler := s.pushHandler
	s.mu.Unlock()

	// Pushed envelopes arrive as binding calls from the agent world
	chromedp.ListenTarget(hostCtx, func(ev interface{}) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != pushBinding {
			return
		}

		var env rpc.Envelope
		if err := json.Unmarshal([]byte(called.Payload), &env); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to decode pushed envelope")
			return
		}

		if handler != nil {
			handler(env)
		}
	})

	attachCtx, attachCancel := boundedHost(hostCtx, ctx)
	defer attachCancel()

	if err := chromedp.Run(attachCtx,
		page.Enable(),
		runtime.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.AddBinding(pushBinding).
				WithExecutionContextName(agentWorldName).
				Do(ctx)
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to attach host page: %w", err)
	}

	if s.config.JavaScriptWaitTime > 0 {
		if err := chromedp.Run(attachCtx, chromedp.Sleep(s.config.JavaScriptWaitTime)); err != nil {
			return fmt.Errorf("failed waiting for host page scripts: %w", err)
		}
	}

	if err := s.provisionAgentWorld(ctx); err != nil {
		return err
	}

	s.logger.Info().Str("url", url).Msg("Worker agent attached to host page")
	return nil
}

// NavigateHost points the host tab at a new location and re-provisions the
// agent world (navigation destroys isolated worlds)
func (s *Session) NavigateHost(ctx context.Context, url string) error {
	hostCtx, err := s.host()
	if err != nil {
		return err
	}

	navCtx, cancel := boundedHost(hostCtx, ctx)
	defer cancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate host page: %w", err)
	}

	if s.config.JavaScriptWaitTime > 0 {
		chromedp.Run(navCtx, chromedp.Sleep(s.config.JavaScriptWaitTime))
	}

	return s.provisionAgentWorld(ctx)
}

// ReloadHost performs a full reload of the host page and waits for it to
// settle. The downstream builder accumulates page state across records, so a
// reload between records is mandatory.
func (s *Session) ReloadHost(ctx context.Context) error {
	hostCtx, err := s.host()
	if err != nil {
		return err
	}

	reloadCtx, cancel := boundedHost(hostCtx, ctx)
	defer cancel()

	if err := chromedp.Run(reloadCtx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to reload host page: %w", err)
	}

	if s.config.JavaScriptWaitTime > 0 {
		chromedp.Run(reloadCtx, chromedp.Sleep(s.config.JavaScriptWaitTime))
	}

	return s.provisionAgentWorld(ctx)
}

// provisionAgentWorld creates the isolated script world on the host frame
func (s *Session) provisionAgentWorld(ctx context.Context) error {
	hostCtx, err := s.host()
	if err != nil {
		return err
	}

	worldCtx, cancel := boundedHost(hostCtx, ctx)
	defer cancel()

	return chromedp.Run(worldCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to get frame tree: %w", err)
		}

		worldID, err := page.CreateIsolatedWorld(tree.Frame.ID).
			WithWorldName(agentWorldName).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to create agent world: %w", err)
		}

		s.mu.Lock()
		s.agentWorldID = worldID
		s.mu.Unlock()

		s.logger.Debug().
			Int64("world_id", int64(worldID)).
			Msg("Isolated agent world provisioned")
		return nil
	}))
}

// EvaluateAgent runs an expression in the isolated agent world without
// waiting for a value; results, if any, come back through the push binding
func (s *Session) EvaluateAgent(ctx context.Context, expression string) error {
	return s.evaluateInWorld(ctx, expression, nil)
}

// EvaluateAgentValue runs an expression in the isolated agent world and
// decodes its value into out
func (s *Session) EvaluateAgentValue(ctx context.Context, expression string, out interface{}) error {
	return s.evaluateInWorld(ctx, expression, out)
}

func (s *Session) evaluateInWorld(ctx context.Context, expression string, out interface{}) error {
	hostCtx, err := s.host()
	if err != nil {
		return err
	}

	s.mu.Lock()
	worldID := s.agentWorldID
	s.mu.Unlock()

	if worldID == 0 {
		return fmt.Errorf("agent world not provisioned")
	}

	evalCtx, cancel := boundedHost(hostCtx, ctx)
	defer cancel()

	return chromedp.Run(evalCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		params := runtime.Evaluate(expression).
			WithContextID(worldID).
			WithAwaitPromise(true).
			WithReturnByValue(out != nil)

		result, exception, err := params.Do(runCtx)
		if err != nil {
			return fmt.Errorf("agent evaluation failed: %w", err)
		}
		if exception != nil {
			return fmt.Errorf("agent script threw: %s", exception.Text)
		}

		if out != nil && result != nil && result.Value != nil {
			if err := json.Unmarshal(result.Value, out); err != nil {
				return fmt.Errorf("failed to decode agent result: %w", err)
			}
		}
		return nil
	}))
}

// EvaluateMain runs an expression in the page's own, non-isolated execution
// context. This is the privileged injection path: anything evaluated here can
// see and replace the host page's own bindings.
func (s *Session) EvaluateMain(ctx context.Context, expression string, out interface{}) error {
	hostCtx, err := s.host()
	if err != nil {
		return err
	}

	evalCtx, cancel := boundedHost(hostCtx, ctx)
	defer cancel()

	if out == nil {
		return chromedp.Run(evalCtx, chromedp.Evaluate(expression, nil))
	}
	return chromedp.Run(evalCtx, chromedp.Evaluate(expression, out))
}

// HostHTML returns the outer HTML of the first node matching the selector on
// the host page
func (s *Session) HostHTML(ctx context.Context, selector string) (string, error) {
	hostCtx, err := s.host()
	if err != nil {
		return "", err
	}

	var html string
	boundedCtx, cancel := boundedHost(hostCtx, ctx)
	defer cancel()

	// Capped at 10s even for callers with a longer deadline
	timedCtx, timedCancel := context.WithTimeout(boundedCtx, 10*time.Second)
	defer timedCancel()

	if err := chromedp.Run(timedCtx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read host HTML: %w", err)
	}
	return html, nil
}

func (s *Session) host() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, ErrNotStarted
	}
	if s.hostCtx == nil {
		return nil, fmt.Errorf("host page not attached")
	}
	return s.hostCtx, nil
}

// Shutdown closes the browser and all its tabs
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}

	s.logger.Info().Msg("Shutting down browser session")
	s.shutdownLocked()
	return nil
}

func (s *Session) shutdownLocked() {
	if s.hostCancel != nil {
		s.hostCancel()
		s.hostCancel = nil
		s.hostCtx = nil
	}
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
		s.allocatorCancel = nil
	}
	s.initialized = false
}
