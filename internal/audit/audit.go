package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/netaudit/internal/model"
)

// Artifact names an audit can require.
const (
	ArtifactDevtoolsLog = "DevtoolsLog"
	ArtifactURL         = "URL"
)

// ErrMissingArtifact is returned by Evaluate when a required artifact was not supplied.
var ErrMissingArtifact = errors.New("audit: missing required artifact")

// Audit is the contract every audit implements. Meta must be a pure value;
// Evaluate performs no I/O besides asking Artifacts for records.
type Audit interface {
	// Meta returns the static descriptor of the audit.
	Meta() model.AuditMeta

	// Evaluate classifies the supplied artifacts. It returns either a result
	// or an error, never both.
	Evaluate(ctx context.Context, artifacts *Artifacts) (*model.AuditResult, error)
}

// RecordSource yields the recorded network requests of a page load. It is the
// one blocking step before classification.
type RecordSource interface {
	NetworkRecords(ctx context.Context) ([]model.NetworkRecord, error)
}

// RecordSourceFunc adapts a function to RecordSource.
type RecordSourceFunc func(ctx context.Context) ([]model.NetworkRecord, error)

func (f RecordSourceFunc) NetworkRecords(ctx context.Context) ([]model.NetworkRecord, error) {
	return f(ctx)
}

// Artifacts is what the host supplies to an audit.
type Artifacts struct {
	// FinalURL is the page URL after redirects; provides ArtifactURL.
	FinalURL string

	// Records provides ArtifactDevtoolsLog.
	Records RecordSource
}

// Has reports whether the named artifact is available.
func (a *Artifacts) Has(name string) bool {
	if a == nil {
		return false
	}
	switch name {
	case ArtifactURL:
		return strings.TrimSpace(a.FinalURL) != ""
	case ArtifactDevtoolsLog:
		return a.Records != nil
	}
	return false
}

// Missing returns the names from required that are not available.
func (a *Artifacts) Missing(required ...string) []string {
	var out []string
	for _, name := range required {
		if !a.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// require fails with ErrMissingArtifact naming every absent artifact.
func (a *Artifacts) require(required ...string) error {
	if missing := a.Missing(required...); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingArtifact, strings.Join(missing, ", "))
	}
	return nil
}

// networkRecords fetches the records. Fetch errors are returned wrapped, never
// replaced by an empty record set.
func (a *Artifacts) networkRecords(ctx context.Context, auditName string) ([]model.NetworkRecord, error) {
	records, err := a.Records.NetworkRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: requesting network records: %w", auditName, err)
	}
	return records, nil
}

// Default returns the built-in audits in report order.
func Default() []Audit {
	return []Audit{CORBAudit{}, MixedContentAudit{}}
}

// ByName looks up a built-in audit.
func ByName(name string) (Audit, bool) {
	for _, a := range Default() {
		if a.Meta().Name == name {
			return a, true
		}
	}
	return nil, false
}

// urlHeadings is the single URL column both audits display.
func urlHeadings() []model.ColumnSpec {
	return []model.ColumnSpec{{Key: "url", ItemType: "url", Text: "URL"}}
}
