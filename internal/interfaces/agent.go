package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/colligo/internal/models"
)

// ErrMissingCapability is returned when a caller requests an operation the
// agent does not advertise
var ErrMissingCapability = errors.New("worker agent missing capability")

// Capability identifies an optional worker agent operation. A single agent
// implementation advertises a capability set; callers request only what they
// need instead of forking near-identical agent variants.
type Capability string

const (
	CapabilityEnumerate   Capability = "enumerate"
	CapabilityInteraction Capability = "interaction"
	CapabilityDetail      Capability = "detail"
	CapabilitySecondary   Capability = "secondary"
	CapabilityBuild       Capability = "build"
)

// WorkerAgent executes page-local operations against the host listing page on
// request and reports results asynchronously. All timed operations respect the
// supplied context deadline.
type WorkerAgent interface {
	// Capabilities returns the operations this agent supports
	Capabilities() []Capability

	// Attach binds the agent to the host page at the given URL
	Attach(ctx context.Context, url string) error

	// CollectItems enumerates the candidate work items from the listing
	CollectItems(ctx context.Context) ([]models.WorkItem, error)

	// SimulateInteraction fires a one-shot user gesture sequence at the
	// item's row; no response is awaited beyond injection completion
	SimulateInteraction(ctx context.Context, index int) error

	// RequestDetail waits for the detail panel and returns its parsed
	// fields, including the resolved target URL when observable
	RequestDetail(ctx context.Context, index int) (*models.DetailFields, error)

	// RequestSecondary switches the detail panel to a secondary tab and
	// returns its text payload
	RequestSecondary(ctx context.Context, kind string) (string, error)

	// RecoverTargetURL drives the interception protocol to capture a
	// navigation-target URL that is not present in the DOM
	RecoverTargetURL(ctx context.Context, index int) (string, error)

	// Build drives one downstream build round-trip for a record
	Build(ctx context.Context, record *models.JobRecord) error

	// NavigateHost points the host page at a new location
	NavigateHost(ctx context.Context, url string) error

	// ReloadHost reloads the host page and waits for it to settle
	ReloadHost(ctx context.Context) error
}

// HasCapability reports whether a capability set contains the given capability
func HasCapability(caps []Capability, want Capability) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}
