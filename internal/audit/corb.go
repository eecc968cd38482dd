package audit

import (
	"context"

	"github.com/raysh454/netaudit/internal/classify"
	"github.com/raysh454/netaudit/internal/model"
	"github.com/raysh454/netaudit/internal/utils"
)

// CORBAudit finds same-origin document responses that Cross-Origin Read
// Blocking could mis-handle because they are not marked nosniff.
type CORBAudit struct{}

func (CORBAudit) Meta() model.AuditMeta {
	return model.AuditMeta{
		Name:        "corb",
		Informative: true,
		Description: "All same-origin responses are correctly typed or set as nosniff",
		FailureDescription: "Some same-origin responses may not be correctly blocked by " +
			"Cross-Origin Read Blocking",
		HelpText: "Cross-Origin Read Blocking can help protect your site's sensitive resources. " +
			"Ensuring your resources are served with the correct content types is a pre-requisite.",
		RequiredArtifacts: []string{ArtifactDevtoolsLog, ArtifactURL},
	}
}

func (a CORBAudit) Evaluate(ctx context.Context, artifacts *Artifacts) (*model.AuditResult, error) {
	meta := a.Meta()
	if err := artifacts.require(meta.RequiredArtifacts...); err != nil {
		return nil, err
	}
	records, err := artifacts.networkRecords(ctx, meta.Name)
	if err != nil {
		return nil, err
	}
	return CORBResult(classify.CORBRiskRecords(records, artifacts.FinalURL)), nil
}

// CORBScore is 1 with no risk records and approaches 0 as the count grows.
func CORBScore(riskCount int) float64 {
	if riskCount < 0 {
		riskCount = 0
	}
	return 1 / float64(riskCount+1)
}

// CORBResult assembles the report for the given risk records.
func CORBResult(risk []model.NetworkRecord) *model.AuditResult {
	n := len(risk)

	displayValue := ""
	if n > 0 {
		displayValue = utils.Pluralize(n, "resource", "resources")
	}

	rows := make([]model.Row, 0, n)
	for _, r := range risk {
		rows = append(rows, model.Row{"url": r.URL})
	}

	return &model.AuditResult{
		Passed:       n == 0,
		Score:        CORBScore(n),
		DisplayValue: displayValue,
		Details: model.Details{
			Type:     "table",
			Headings: urlHeadings(),
			Rows:     rows,
		},
	}
}
