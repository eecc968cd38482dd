// Package classify holds the pure predicates and filters the audits are built
// from. Nothing here performs I/O, keeps state or modifies a record.
package classify

import (
	"strings"

	"github.com/raysh454/netaudit/internal/model"
	"github.com/raysh454/netaudit/internal/utils"
)

const (
	nosniffHeader = "x-content-type-options"
	nosniffValue  = "nosniff"
)

// secureSchemes are the schemes considered a secure transport. Matching is
// exact; loaders lowercase schemes.
var secureSchemes = []string{"data", "https", "wss", "blob", "chrome", "chrome-extension"}

// secureDomains are hosts whose traffic never leaves the machine.
var secureDomains = []string{"localhost", "127.0.0.1"}

// HasNosniffProtection reports whether the response carried
// X-Content-Type-Options: nosniff. Name and value compare case-insensitively.
func HasNosniffProtection(r model.NetworkRecord) bool {
	for _, h := range r.ResponseHeaders {
		if strings.EqualFold(strings.TrimSpace(h.Name), nosniffHeader) &&
			strings.EqualFold(strings.TrimSpace(h.Value), nosniffValue) {
			return true
		}
	}
	return false
}

// IsDocumentResource reports whether the record is a Document. Unknown
// resource types are not documents.
func IsDocumentResource(r model.NetworkRecord) bool {
	return r.ResourceType == model.ResourceDocument
}

// IsSecureTransport reports whether the record was delivered over an
// allow-listed scheme or from a loopback domain.
func IsSecureTransport(r model.NetworkRecord) bool {
	return contains(secureSchemes, r.Scheme) || contains(secureDomains, r.Domain)
}

// IsCORBRisk is the CORB risk predicate: a same-origin document response
// without nosniff protection.
func IsCORBRisk(r model.NetworkRecord, finalURL string) bool {
	return IsDocumentResource(r) &&
		utils.SameOrigin(r.URL, finalURL) &&
		!HasNosniffProtection(r)
}

// CORBRiskRecords keeps the records matching IsCORBRisk, in input order.
func CORBRiskRecords(records []model.NetworkRecord, finalURL string) []model.NetworkRecord {
	return Filter(records, func(r model.NetworkRecord) bool {
		return IsCORBRisk(r, finalURL)
	})
}

// SecureTransportRecords keeps the records matching IsSecureTransport, in input order.
func SecureTransportRecords(records []model.NetworkRecord) []model.NetworkRecord {
	return Filter(records, IsSecureTransport)
}

// Filter returns a new slice with the records for which keep returns true.
// The result never aliases records, and is non-nil even when empty.
func Filter(records []model.NetworkRecord, keep func(model.NetworkRecord) bool) []model.NetworkRecord {
	out := make([]model.NetworkRecord, 0)
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
