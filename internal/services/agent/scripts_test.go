package agent

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Each script template must consume exactly its documented arguments; a
// mismatch shows up as a %! artifact in the rendered script and would be
// injected into the page verbatim.
func TestScriptTemplates_RenderCleanly(t *testing.T) {
	rendered := map[string]string{
		"collect_items": fmt.Sprintf(collectItemsScript,
			"call-1", rowSelector, rowStatusSelector, rowTitleSelector, rowCompanySelector, rowContactSelector),
		"simulate_interaction": fmt.Sprintf(simulateInteractionScript, rowSelector, 3),
		"request_detail": fmt.Sprintf(requestDetailScript,
			"call-2", int64(20000), panelSelector,
			panelManagerLink, panelTargetSelector,
			panelTitleSelector, panelCompanySelector, panelManagerSelector, panelSummarySelector),
		"request_secondary": fmt.Sprintf(requestSecondaryScript,
			"call-3", "about", int64(15000), tabSelector, panelSelector),
		"trigger_outbound": fmt.Sprintf(triggerOutboundScript, panelSelector, panelActionSelector),
		"build": fmt.Sprintf(buildScript,
			"call-4", `{"jobId":"job_x","title":"T"}`, int64(60000),
			builderTitleInput, builderCompanyInput, builderBodyInput,
			builderSubmitButton, builderDoneSelector),
	}

	for name, script := range rendered {
		assert.NotContains(t, script, "%!", "script %s has unconsumed or extra format arguments", name)
	}
}

func TestScriptTemplates_CarryCorrelationID(t *testing.T) {
	script := fmt.Sprintf(collectItemsScript,
		"8f14e45f-ceea-4672-a2f5-1d7b9f0a2c11", rowSelector, rowStatusSelector, rowTitleSelector, rowCompanySelector, rowContactSelector)
	assert.Contains(t, script, "8f14e45f-ceea-4672-a2f5-1d7b9f0a2c11")
	assert.True(t, strings.Contains(script, "colligoPush"))
}
