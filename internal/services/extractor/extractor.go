package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/browser"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// auxiliaryScript pulls the raw extraction inputs from the loaded target
// page in one evaluation. Field parsing and conversion happen Go-side.
const auxiliaryScript = `(() => {
	const pick = (sels) => {
		for (const sel of sels) {
			const el = document.querySelector(sel);
			if (el && el.textContent.trim()) {
				return el.textContent.trim();
			}
		}
		return '';
	};
	const descEl = document.querySelector('[data-job-description], .job-description, #job-description, article, main');
	return {
		descriptionHtml: descEl ? descEl.innerHTML : (document.body ? document.body.innerHTML : ''),
		location: pick(['[data-location]', '.job-location', '.location']),
		experience: pick(['[data-experience]', '.job-experience', '.experience-level']),
		bodyText: document.body ? document.body.innerText.slice(0, 20000) : ''
	};
})()`

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// auxiliaryPage is the raw evaluation result before conversion
type auxiliaryPage struct {
	DescriptionHTML string `json:"descriptionHtml"`
	Location        string `json:"location"`
	Experience      string `json:"experience"`
	BodyText        string `json:"bodyText"`
}

// Extractor runs the one-shot extraction against an auxiliary tab: open the
// target URL in the background, pull the page fields, convert the description
// to markdown, close the tab. Extraction is degradable; a failed or partial
// extraction returns empty fields rather than failing the item.
type Extractor struct {
	session   *browser.Session
	config    *common.PipelineConfig
	converter *md.Converter
	logger    arbor.ILogger
}

// New creates an auxiliary page extractor
func New(session *browser.Session, config *common.PipelineConfig, logger arbor.ILogger) *Extractor {
	return &Extractor{
		session:   session,
		config:    config,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Extract loads targetURL in an auxiliary tab and returns its extracted
// fields plus the tab's final URL after redirects. On failure the fields are
// empty and the error describes the degradation; callers continue the item
// either way.
func (e *Extractor) Extract(ctx context.Context, targetURL string) (*models.AuxiliaryFields, string, error) {
	fields := &models.AuxiliaryFields{}

	tab, err := e.session.OpenTab(ctx, targetURL, e.config.LoadTimeout)
	if err != nil {
		return fields, targetURL, fmt.Errorf("auxiliary page unavailable: %w", err)
	}
	defer tab.Close()

	finalURL, err := tab.URL(ctx)
	if err != nil || finalURL == "" {
		finalURL = targetURL
	}

	var page auxiliaryPage
	if err := tab.Evaluate(ctx, auxiliaryScript, &page); err != nil {
		return fields, finalURL, fmt.Errorf("auxiliary extraction failed: %w", err)
	}

	fields.FullDescription = e.ConvertDescription(page.DescriptionHTML)
	fields.Location = page.Location
	fields.Experience = page.Experience
	fields.ContactEmail = FindContactEmail(page.BodyText)

	e.logger.Debug().
		Str("url", finalURL).
		Int("description_len", len(fields.FullDescription)).
		Bool("has_email", fields.ContactEmail != "").
		Msg("Auxiliary page extracted")

	return fields, finalURL, nil
}

// ConvertDescription converts the description HTML to markdown. Conversion
// errors degrade to the tag-stripped text rather than dropping the field.
func (e *Extractor) ConvertDescription(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	markdown, err := e.converter.ConvertString(html)
	if err != nil {
		e.logger.Debug().Err(err).Msg("Markdown conversion failed, using stripped text")
		return stripTags(html)
	}
	return strings.TrimSpace(markdown)
}

// FindContactEmail returns the first email address in the text, or empty
func FindContactEmail(text string) string {
	return emailPattern.FindString(text)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	return strings.Join(strings.Fields(text), " ")
}
