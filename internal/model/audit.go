package model

import "time"

// AuditMeta is the static descriptor an audit exposes to the host.
type AuditMeta struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`

	// Informative audits do not gate the overall verdict.
	Informative bool `json:"informative"`

	Description        string `json:"description"`
	FailureDescription string `json:"failure_description"`
	HelpText           string `json:"help_text"`

	// RequiredArtifacts names the inputs the host must supply before the audit runs.
	RequiredArtifacts []string `json:"required_artifacts"`
}

// ColumnSpec describes one column of a details table.
type ColumnSpec struct {
	Key      string `json:"key"`
	ItemType string `json:"item_type"`
	Text     string `json:"text"`
}

// Row is one details entry keyed by ColumnSpec.Key.
type Row map[string]string

// Details is the tabular/list payload a renderer displays under an audit.
type Details struct {
	// Type is "table" or "list".
	Type     string       `json:"type"`
	Header   string       `json:"header,omitempty"`
	Headings []ColumnSpec `json:"headings"`
	Rows     []Row        `json:"rows"`
}

// AuditResult is the output of a single audit evaluation.
type AuditResult struct {
	Passed bool `json:"passed"`

	// Score is in [0, 1].
	Score float64 `json:"score"`

	DisplayValue string         `json:"display_value"`
	Details      Details        `json:"details"`
	ExtendedInfo map[string]any `json:"extended_info,omitempty"`
}

// URLs returns the "url" column of the result's rows in order.
func (r *AuditResult) URLs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Details.Rows))
	for _, row := range r.Details.Rows {
		out = append(out, row["url"])
	}
	return out
}

// AuditOutcome is what a run records for one audit. Exactly one of Result,
// NotApplicable and Error is set.
type AuditOutcome struct {
	Meta          AuditMeta    `json:"meta"`
	Result        *AuditResult `json:"result,omitempty"`
	NotApplicable bool         `json:"not_applicable,omitempty"`
	Error         string       `json:"error,omitempty"`
	DurationMS    int64        `json:"duration_ms"`
}

// Run is one invocation of the audit set against a recorded page load.
type Run struct {
	ID          string         `json:"id"`
	FinalURL    string         `json:"final_url"`
	Source      string         `json:"source,omitempty"`
	RecordCount int            `json:"record_count"`
	CreatedAt   time.Time      `json:"created_at"`
	Outcomes    []AuditOutcome `json:"outcomes"`
}

// Outcome returns the outcome for the named audit, or nil.
func (r *Run) Outcome(name string) *AuditOutcome {
	if r == nil {
		return nil
	}
	for i := range r.Outcomes {
		if r.Outcomes[i].Meta.Name == name {
			return &r.Outcomes[i]
		}
	}
	return nil
}

// Failed reports whether any audit in the run ended with an error.
func (r *Run) Failed() bool {
	if r == nil {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Error != "" {
			return true
		}
	}
	return false
}

// AuditComparison explains how one audit changed between two runs.
type AuditComparison struct {
	Name        string   `json:"name"`
	PassedBase  bool     `json:"passed_base"`
	PassedHead  bool     `json:"passed_head"`
	ScoreBase   float64  `json:"score_base"`
	ScoreHead   float64  `json:"score_head"`
	ScoreDelta  float64  `json:"score_delta"`
	AddedURLs   []string `json:"added_urls,omitempty"`
	RemovedURLs []string `json:"removed_urls,omitempty"`
}

// RunComparison is the per-audit delta between a base and a head run.
type RunComparison struct {
	BaseID string            `json:"base_id"`
	HeadID string            `json:"head_id"`
	Audits []AuditComparison `json:"audits"`
}
