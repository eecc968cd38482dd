package audit

import (
	"context"

	"github.com/raysh454/netaudit/internal/classify"
	"github.com/raysh454/netaudit/internal/model"
	"github.com/raysh454/netaudit/internal/utils"
)

// MixedContentAudit lists the requests observed over a secure scheme or a
// loopback host. It passes when at least one such request exists.
//
// TODO: switch to flagging insecure requests once the insecure-record view
// replaces the secure one; the pass polarity below is the current behavior.
type MixedContentAudit struct{}

func (MixedContentAudit) Meta() model.AuditMeta {
	return model.AuditMeta{
		Name:               "mixed-content",
		Category:           "Mixed Content",
		Description:        "Requests are delivered over a secure transport",
		FailureDescription: "No request was delivered over a secure transport",
		HelpText: "Resources loaded over plain HTTP from an HTTPS page can be read or " +
			"modified by network attackers. Serve every resource over HTTPS.",
		RequiredArtifacts: []string{ArtifactDevtoolsLog},
	}
}

func (a MixedContentAudit) Evaluate(ctx context.Context, artifacts *Artifacts) (*model.AuditResult, error) {
	meta := a.Meta()
	if err := artifacts.require(meta.RequiredArtifacts...); err != nil {
		return nil, err
	}
	records, err := artifacts.networkRecords(ctx, meta.Name)
	if err != nil {
		return nil, err
	}
	return MixedContentResult(classify.SecureTransportRecords(records)), nil
}

// MixedContentResult assembles the report for the given secure records.
func MixedContentResult(secure []model.NetworkRecord) *model.AuditResult {
	n := len(secure)

	displayValue := ""
	switch {
	case n > 1:
		displayValue = utils.FormatCount(n) + " secure requests found"
	case n == 1:
		displayValue = "1 secure request found"
	}

	rows := make([]model.Row, 0, n)
	for _, r := range secure {
		rows = append(rows, model.Row{"url": utils.ElideDataURI(r.URL)})
	}

	score := 0.0
	if n != 0 {
		score = 1
	}

	return &model.AuditResult{
		Passed:       n != 0,
		Score:        score,
		DisplayValue: displayValue,
		Details: model.Details{
			Type:     "list",
			Header:   "Secure URLs:",
			Headings: urlHeadings(),
			Rows:     rows,
		},
		ExtendedInfo: map[string]any{"value": rows},
	}
}
