package model

// ResourceType is the kind of resource a request loaded, as reported by the
// capture layer. The zero value means the capture layer did not know.
type ResourceType string

const (
	ResourceDocument   ResourceType = "Document"
	ResourceScript     ResourceType = "Script"
	ResourceImage      ResourceType = "Image"
	ResourceStylesheet ResourceType = "Stylesheet"
	ResourceXHR        ResourceType = "XHR"
	ResourceOther      ResourceType = "Other"
	ResourceUnknown    ResourceType = "Unknown"
)

// Header is one response header line. Order and casing are kept as recorded.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NetworkRecord is one observed request/response during a page load.
// Records are produced once by a loader and never modified afterwards.
type NetworkRecord struct {
	URL string `json:"url"`

	// Scheme is the lowercase protocol without the trailing colon (e.g. "https").
	Scheme string `json:"scheme"`

	// Domain is the lowercase hostname, empty for opaque URLs such as data:.
	Domain string `json:"domain"`

	ResourceType ResourceType `json:"resource_type"`

	// ResponseHeaders may be nil; nil and empty are treated the same.
	ResponseHeaders []Header `json:"response_headers,omitempty"`
}
