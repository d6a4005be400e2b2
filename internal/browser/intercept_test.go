package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanExternalLink_FindsFirstExternal(t *testing.T) {
	html := `<div class="panel">
		<a href="/jobs/123">Internal detail</a>
		<a href="https://listing.example.com/jobs/456">Same host</a>
		<a href="https://careers.acme.com/apply/789">Apply now</a>
		<a href="https://other.example.org/posting">Another external</a>
	</div>`

	link, err := ScanExternalLink(html, "listing.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://careers.acme.com/apply/789", link)
}

func TestScanExternalLink_SubdomainsCountAsInternal(t *testing.T) {
	html := `<div>
		<a href="https://www.listing.example.com/jobs/1">Subdomain</a>
		<a href="https://boards.greenhouse.io/acme/jobs/2">External</a>
	</div>`

	link, err := ScanExternalLink(html, "listing.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/2", link)
}

func TestScanExternalLink_NoExternalLinks(t *testing.T) {
	html := `<div>
		<a href="/jobs/123">Relative</a>
		<a href="mailto:recruiter@acme.com">Email</a>
		<a href="javascript:void(0)">Script</a>
		<a href="https://listing.example.com/about">Same host</a>
	</div>`

	_, err := ScanExternalLink(html, "listing.example.com")
	assert.ErrorIs(t, err, ErrNoInterceptedURL)
}

func TestScanExternalLink_MalformedHTMLStillParses(t *testing.T) {
	html := `<div><a href="https://careers.acme.com/1">Unclosed`

	link, err := ScanExternalLink(html, "listing.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://careers.acme.com/1", link)
}

func TestIsExternalURL(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		domain string
		want   bool
	}{
		{"external https", "https://careers.acme.com/1", "listing.example.com", true},
		{"external http", "http://careers.acme.com/1", "listing.example.com", true},
		{"same host", "https://listing.example.com/jobs", "listing.example.com", false},
		{"subdomain of host", "https://app.listing.example.com/x", "listing.example.com", false},
		{"relative path", "/jobs/123", "listing.example.com", false},
		{"mailto", "mailto:a@b.com", "listing.example.com", false},
		{"javascript", "javascript:void(0)", "listing.example.com", false},
		{"case insensitive host", "https://LISTING.EXAMPLE.COM/x", "listing.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isExternalURL(tt.raw, tt.domain))
		})
	}
}

func TestInterceptShim_ScriptShape(t *testing.T) {
	// The shim and cleanup scripts must reference the same signal attribute
	// the poller reads
	assert.Contains(t, interceptShimJS, navSignalAttr)
	assert.Contains(t, interceptCleanupJS, navSignalAttr)
	assert.Contains(t, readNavSignalJS, navSignalAttr)

	// Shim must stub the window handle so page scripts can call close()
	assert.True(t, strings.Contains(interceptShimJS, "close: () => {}"))
}
