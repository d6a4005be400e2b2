package models

import "time"

// HiringManager holds the hiring contact parsed from the detail panel
type HiringManager struct {
	Name       string `json:"name,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// JobRecord is the durable unit of output: everything merged from the listing
// row, the detail panel, the auxiliary page and the secondary tabs. Records
// are keyed by fingerprint id and upserted, so re-submission is idempotent.
type JobRecord struct {
	ID               string            `badgerhold:"key" json:"jobId"`
	Title            string            `json:"title"`
	Company          string            `json:"company"`
	HiringManager    HiringManager     `json:"hiringManager,omitempty"`
	ShortDescription string            `json:"shortDescription,omitempty"`
	TargetURL        string            `json:"targetUrl"`
	FullDescription  string            `json:"fullDescription,omitempty"`
	ContactEmail     string            `json:"contactEmail,omitempty"`
	Location         string            `json:"location,omitempty"`
	Experience       string            `json:"experience,omitempty"`
	Secondary        map[string]string `json:"secondary,omitempty"`
	Source           string            `json:"source"`
	SubmittedAt      time.Time         `json:"submittedAt"`

	// Built marks whether the downstream build phase has run for this record
	Built bool `json:"built"`
}

// ProcessedFingerprint is a member of the processed set; its presence means
// the record was already merged and submitted in this or a prior run
type ProcessedFingerprint struct {
	ID          string    `badgerhold:"key" json:"id"`
	ProcessedAt time.Time `json:"processed_at"`
}
