package server

import "encoding/json"

// CreateRunRequest is the payload for POST /runs and the first message on /ws/runs.
type CreateRunRequest struct {
	FinalURL string `json:"final_url" example:"https://example.com/"`

	// Format is auto|devtools|har; empty uses the configured default.
	Format string `json:"format" example:"auto"`

	// Log is the recorded page load: a DevTools event array, a HAR object,
	// or either one encoded as a JSON string. Omit it to run without records.
	Log json.RawMessage `json:"log,omitempty" swaggertype:"object"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"run not found"`
}
