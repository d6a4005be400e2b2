package models

// WorkItem is a candidate unit of work as enumerated by the worker agent.
// Ephemeral; discarded once the merged record is built.
type WorkItem struct {
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Company string `json:"company"`
	Contact string `json:"contact,omitempty"`
}

// DetailFields holds the parsed detail-panel response for one item
type DetailFields struct {
	Title            string        `json:"title"`
	Company          string        `json:"company"`
	HiringManager    HiringManager `json:"hiringManager"`
	ShortDescription string        `json:"shortDescription"`
	TargetURL        string        `json:"targetUrl"`
	PanelHTML        string        `json:"panelHtml,omitempty"`
}

// AuxiliaryFields holds the one-shot page extractor result from the auxiliary
// context. All fields degrade to empty strings on extraction failure.
type AuxiliaryFields struct {
	FullDescription string `json:"fullDescription"`
	ContactEmail    string `json:"contactEmail"`
	Location        string `json:"location"`
	Experience      string `json:"experience"`
}
