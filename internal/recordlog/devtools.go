package recordlog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/network"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/raysh454/netaudit/internal/model"
)

// devtoolsEvent is one entry of a recorded DevTools protocol log.
type devtoolsEvent struct {
	Method cdproto.MethodType `json:"method"`
	Params jsontext.Value     `json:"params"`
}

// requestWillBeSentParams and responseReceivedParams keep only what the loader
// reads. Enum fields are plain strings so a value newer than cdproto's tables
// does not reject the whole log.
type requestWillBeSentParams struct {
	RequestID        network.RequestID `json:"requestId"`
	Request          *cdpRequest       `json:"request"`
	RedirectResponse *cdpResponse      `json:"redirectResponse"`
	Type             string            `json:"type"`
}

type responseReceivedParams struct {
	RequestID network.RequestID `json:"requestId"`
	Response  *cdpResponse      `json:"response"`
	Type      string            `json:"type"`
}

type cdpRequest struct {
	URL string `json:"url"`
}

type cdpResponse struct {
	URL     string          `json:"url"`
	Headers network.Headers `json:"headers"`
}

// ParseDevtoolsLog turns a recorded DevTools protocol event log (a JSON array
// of {method, params} objects) into network records in first-seen order.
//
// Only Network.requestWillBeSent and Network.responseReceived are read. A
// request id seen again in requestWillBeSent is a redirect hop: it becomes a
// record of its own and the redirect response headers stay with the previous hop.
func ParseDevtoolsLog(data []byte) ([]model.NetworkRecord, error) {
	var events []devtoolsEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: devtools log: %v", ErrMalformedLog, err)
	}

	b := newRecordBuilder()
	for i, ev := range events {
		switch ev.Method {
		case cdproto.EventNetworkRequestWillBeSent:
			var p requestWillBeSentParams
			if err := unmarshalParams(ev, &p); err != nil {
				return nil, fmt.Errorf("%w: event %d: %v", ErrMalformedLog, i, err)
			}
			b.requestWillBeSent(&p)
		case cdproto.EventNetworkResponseReceived:
			var p responseReceivedParams
			if err := unmarshalParams(ev, &p); err != nil {
				return nil, fmt.Errorf("%w: event %d: %v", ErrMalformedLog, i, err)
			}
			b.responseReceived(&p)
		}
	}
	return b.records(), nil
}

func unmarshalParams(ev devtoolsEvent, out any) error {
	if len(ev.Params) == 0 {
		return fmt.Errorf("%s: missing params", ev.Method)
	}
	if err := json.Unmarshal(ev.Params, out); err != nil {
		return fmt.Errorf("%s: %v", ev.Method, err)
	}
	return nil
}

type recordBuilder struct {
	recs []model.NetworkRecord
	byID map[network.RequestID]int
}

func newRecordBuilder() *recordBuilder {
	return &recordBuilder{byID: make(map[network.RequestID]int)}
}

func (b *recordBuilder) open(id network.RequestID, rawURL string, rt network.ResourceType) {
	b.recs = append(b.recs, newRecord(rawURL, resourceTypeFromCDP(rt)))
	b.byID[id] = len(b.recs) - 1
}

func (b *recordBuilder) requestWillBeSent(ev *requestWillBeSentParams) {
	if ev.Request == nil {
		return
	}
	if idx, ok := b.byID[ev.RequestID]; ok && ev.RedirectResponse != nil {
		b.recs[idx].ResponseHeaders = headersFromCDP(ev.RedirectResponse.Headers)
	}
	b.open(ev.RequestID, ev.Request.URL, network.ResourceType(ev.Type))
}

func (b *recordBuilder) responseReceived(ev *responseReceivedParams) {
	if ev.Response == nil {
		return
	}
	idx, ok := b.byID[ev.RequestID]
	if !ok {
		b.open(ev.RequestID, ev.Response.URL, network.ResourceType(ev.Type))
		idx = b.byID[ev.RequestID]
	}
	rec := &b.recs[idx]
	rec.ResponseHeaders = headersFromCDP(ev.Response.Headers)
	if ev.Type != "" {
		rec.ResourceType = resourceTypeFromCDP(network.ResourceType(ev.Type))
	}
}

func (b *recordBuilder) records() []model.NetworkRecord {
	if b.recs == nil {
		return []model.NetworkRecord{}
	}
	return b.recs
}

// resourceTypeFromCDP maps the protocol's resource types onto the audit's
// coarser set. Fetch is treated as XHR.
func resourceTypeFromCDP(rt network.ResourceType) model.ResourceType {
	switch rt {
	case "":
		return model.ResourceUnknown
	case network.ResourceTypeDocument:
		return model.ResourceDocument
	case network.ResourceTypeScript:
		return model.ResourceScript
	case network.ResourceTypeImage:
		return model.ResourceImage
	case network.ResourceTypeStylesheet:
		return model.ResourceStylesheet
	case network.ResourceTypeXHR, network.ResourceTypeFetch:
		return model.ResourceXHR
	default:
		return model.ResourceOther
	}
}

// headersFromCDP flattens protocol headers. The protocol joins repeated
// headers with newlines; each line becomes its own entry. Entries are sorted
// by name since the protocol object carries no order.
func headersFromCDP(h network.Headers) []model.Header {
	if len(h) == 0 {
		return nil
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]model.Header, 0, len(h))
	for _, name := range names {
		var value string
		switch v := h[name].(type) {
		case string:
			value = v
		case nil:
		default:
			value = fmt.Sprint(v)
		}
		for _, line := range strings.Split(value, "\n") {
			out = append(out, model.Header{Name: name, Value: line})
		}
	}
	return out
}
