package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/browser"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/rpc"
)

const interceptPollInterval = 500 * time.Millisecond

// Agent implements the worker agent over the browser session and the
// pending-call table. Every asynchronous page operation registers a call,
// evaluates a script carrying the correlation id, and awaits the pushed
// response.
type Agent struct {
	session    *browser.Session
	table      *rpc.Table
	config     *common.PipelineConfig
	logger     arbor.ILogger
	hostDomain string
}

// NewAgent creates a worker agent and wires pushed envelopes into the
// pending-call table
func NewAgent(session *browser.Session, table *rpc.Table, config *common.PipelineConfig, logger arbor.ILogger) interfaces.WorkerAgent {
	agent := &Agent{
		session: session,
		table:   table,
		config:  config,
		logger:  logger,
	}

	session.OnPush(func(env rpc.Envelope) {
		table.Resolve(env)
	})

	return agent
}

// Capabilities returns the full operation set; this agent implements every
// optional operation
func (a *Agent) Capabilities() []interfaces.Capability {
	return []interfaces.Capability{
		interfaces.CapabilityEnumerate,
		interfaces.CapabilityInteraction,
		interfaces.CapabilityDetail,
		interfaces.CapabilitySecondary,
		interfaces.CapabilityBuild,
	}
}

// Attach binds the agent to the host page
func (a *Agent) Attach(ctx context.Context, pageURL string) error {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("invalid host page URL: %w", err)
	}
	a.hostDomain = parsed.Hostname()

	return a.session.AttachHost(ctx, pageURL)
}

// CollectItems enumerates candidate work items from the listing rows
func (a *Agent) CollectItems(ctx context.Context) ([]models.WorkItem, error) {
	timeout := a.config.DetailTimeout
	id, ch := a.table.Register("collect_items", timeout)

	script := fmt.Sprintf(collectItemsScript,
		id, rowSelector, rowStatusSelector, rowTitleSelector, rowCompanySelector, rowContactSelector)

	if err := a.session.EvaluateAgent(ctx, script); err != nil {
		a.table.Cancel(id)
		return nil, fmt.Errorf("failed to inject enumeration script: %w", err)
	}

	payload, err := a.table.Await(ctx, id, ch)
	if err != nil {
		return nil, fmt.Errorf("item enumeration failed: %w", err)
	}

	var items []models.WorkItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("failed to decode enumerated items: %w", err)
	}

	a.logger.Info().Int("count", len(items)).Msg("Enumerated listing items")
	return items, nil
}

// SimulateInteraction fires the gesture sequence at the item's row. One-shot:
// nothing is awaited beyond injection, and any retry is the caller's call.
func (a *Agent) SimulateInteraction(ctx context.Context, index int) error {
	script := fmt.Sprintf(simulateInteractionScript, rowSelector, index)
	if err := a.session.EvaluateAgent(ctx, script); err != nil {
		return fmt.Errorf("interaction injection failed for item %d: %w", index, err)
	}
	return nil
}

// RequestDetail waits for the detail panel and returns its parsed fields
func (a *Agent) RequestDetail(ctx context.Context, index int) (*models.DetailFields, error) {
	timeout := a.config.DetailTimeout
	id, ch := a.table.Register("request_detail", timeout)

	script := fmt.Sprintf(requestDetailScript,
		id, timeout.Milliseconds(), panelSelector,
		panelManagerLink, panelTargetSelector,
		panelTitleSelector, panelCompanySelector, panelManagerSelector, panelSummarySelector)

	if err := a.session.EvaluateAgent(ctx, script); err != nil {
		a.table.Cancel(id)
		return nil, fmt.Errorf("failed to inject detail script: %w", err)
	}

	payload, err := a.table.Await(ctx, id, ch)
	if err != nil {
		return nil, fmt.Errorf("detail request failed for item %d: %w", index, err)
	}

	var fields models.DetailFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode detail fields: %w", err)
	}
	return &fields, nil
}

// RequestSecondary switches the detail panel to a secondary tab and returns
// its text payload
func (a *Agent) RequestSecondary(ctx context.Context, kind string) (string, error) {
	timeout := a.config.SecondaryTimeout
	id, ch := a.table.Register("request_secondary", timeout)

	script := fmt.Sprintf(requestSecondaryScript,
		id, kind, timeout.Milliseconds(), tabSelector, panelSelector)

	if err := a.session.EvaluateAgent(ctx, script); err != nil {
		a.table.Cancel(id)
		return "", fmt.Errorf("failed to inject secondary-tab script: %w", err)
	}

	payload, err := a.table.Await(ctx, id, ch)
	if err != nil {
		return "", fmt.Errorf("secondary request %q failed: %w", kind, err)
	}

	var text string
	if err := json.Unmarshal(payload, &text); err != nil {
		return "", fmt.Errorf("failed to decode secondary payload: %w", err)
	}
	return text, nil
}

// RecoverTargetURL captures the outbound destination of the panel's action
// control. The navigation shim is armed in the page's main world, the control
// is clicked from the agent world, and the captured URL is polled off the
// DOM. Falls back to scanning the panel HTML for an external link, and always
// restores the page's navigation primitives.
func (a *Agent) RecoverTargetURL(ctx context.Context, index int) (string, error) {
	timeout := a.config.DetailTimeout
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := a.session.PrepareInterception(opCtx); err != nil {
		return "", err
	}
	defer func() {
		// Cleanup must survive the operation context expiring
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		if err := a.session.CleanupInterception(cleanupCtx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to restore navigation primitives")
		}
	}()

	trigger := fmt.Sprintf(triggerOutboundScript, panelSelector, panelActionSelector)
	if err := a.session.EvaluateAgent(opCtx, trigger); err != nil {
		return "", fmt.Errorf("failed to trigger outbound action for item %d: %w", index, err)
	}

	attempts := int(timeout / interceptPollInterval)
	if attempts < 1 {
		attempts = 1
	}

	captured, err := a.session.PollInterceptedURL(opCtx, interceptPollInterval, attempts)
	if err == nil {
		return captured, nil
	}
	if !errors.Is(err, browser.ErrNoInterceptedURL) {
		return "", err
	}

	a.logger.Debug().Int("index", index).Msg("Interception captured nothing, scanning panel links")

	html, err := a.session.HostHTML(opCtx, panelSelector)
	if err != nil {
		return "", fmt.Errorf("fallback link scan failed: %w", err)
	}
	return browser.ScanExternalLink(html, a.hostDomain)
}

// Build drives one downstream build round-trip for a record
func (a *Agent) Build(ctx context.Context, record *models.JobRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record for builder: %w", err)
	}

	timeout := a.config.BuildTimeout
	id, ch := a.table.Register("build", timeout)

	script := fmt.Sprintf(buildScript,
		id, string(recordJSON), timeout.Milliseconds(),
		builderTitleInput, builderCompanyInput, builderBodyInput,
		builderSubmitButton, builderDoneSelector)

	if err := a.session.EvaluateAgent(ctx, script); err != nil {
		a.table.Cancel(id)
		return fmt.Errorf("failed to inject build script: %w", err)
	}

	if _, err := a.table.Await(ctx, id, ch); err != nil {
		return fmt.Errorf("build failed for record %s: %w", record.ID, err)
	}

	a.logger.Info().Str("record_id", record.ID).Msg("Downstream build completed")
	return nil
}

// NavigateHost points the host page at a new location
func (a *Agent) NavigateHost(ctx context.Context, pageURL string) error {
	return a.session.NavigateHost(ctx, pageURL)
}

// ReloadHost reloads the host page and waits for it to settle
func (a *Agent) ReloadHost(ctx context.Context) error {
	return a.session.ReloadHost(ctx)
}
