package recordlog

import (
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/raysh454/netaudit/internal/model"
)

// Minimal HAR 1.2 structs for import; only the fields the audits read.
type harFile struct {
	Log harLog `json:"log"`
}

type harLog struct {
	Entries []harEntry `json:"entries"`
}

type harEntry struct {
	Request      harRequest  `json:"request"`
	Response     harResponse `json:"response"`
	ResourceType string      `json:"_resourceType"`
}

type harRequest struct {
	URL string `json:"url"`
}

type harResponse struct {
	Headers []harHeader `json:"headers"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseHAR reads a HAR archive. The resource type comes from the Chrome
// "_resourceType" extension field and is Unknown when absent.
func ParseHAR(data []byte) ([]model.NetworkRecord, error) {
	var f harFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: har: %v", ErrMalformedLog, err)
	}

	out := make([]model.NetworkRecord, 0, len(f.Log.Entries))
	for _, e := range f.Log.Entries {
		if e.Request.URL == "" {
			continue
		}
		rec := newRecord(e.Request.URL, resourceTypeFromHAR(e.ResourceType))
		if len(e.Response.Headers) > 0 {
			rec.ResponseHeaders = make([]model.Header, 0, len(e.Response.Headers))
			for _, h := range e.Response.Headers {
				rec.ResponseHeaders = append(rec.ResponseHeaders, model.Header{Name: h.Name, Value: h.Value})
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func resourceTypeFromHAR(rt string) model.ResourceType {
	switch strings.ToLower(strings.TrimSpace(rt)) {
	case "":
		return model.ResourceUnknown
	case "document":
		return model.ResourceDocument
	case "script":
		return model.ResourceScript
	case "image":
		return model.ResourceImage
	case "stylesheet":
		return model.ResourceStylesheet
	case "xhr", "fetch":
		return model.ResourceXHR
	default:
		return model.ResourceOther
	}
}
