package intent

import "strings"

// Result is one NLU round trip, reduced to what a reply needs.
type Result struct {
	QueryText       string
	FulfillmentText string
	IntentName      string
	Confidence      float64
	Parameters      map[string]any
	// RichText and RichPayload list the text and custom payload fulfillment
	// messages in the order the agent returned them. Never nil.
	RichText    []string
	RichPayload []map[string]any
	// OutputContexts holds the short names of the contexts left active.
	OutputContexts []string
}

// Context is an active conversational context of a session.
type Context struct {
	Name          string // short name, e.g. "awaiting-order-id"
	Path          string // full resource name
	LifespanCount int
	Parameters    map[string]any
}

func newResult(qr *queryResult) *Result {
	r := &Result{
		Parameters:     map[string]any{},
		RichText:       []string{},
		RichPayload:    []map[string]any{},
		OutputContexts: []string{},
	}
	if qr == nil {
		return r
	}

	r.QueryText = qr.QueryText
	r.FulfillmentText = qr.FulfillmentText
	r.Confidence = qr.IntentDetectionConfidence
	if qr.Intent != nil {
		r.IntentName = qr.Intent.DisplayName
	}
	for k, v := range qr.Parameters {
		r.Parameters[k] = v
	}
	for _, fm := range qr.FulfillmentMessages {
		if fm.Text != nil {
			r.RichText = append(r.RichText, fm.Text.Text...)
		}
		if fm.Payload != nil {
			r.RichPayload = append(r.RichPayload, fm.Payload)
		}
	}
	for _, c := range qr.OutputContexts {
		r.OutputContexts = append(r.OutputContexts, shortName(c.Name))
	}
	return r
}

func toContext(c wireContext) Context {
	params := c.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return Context{
		Name:          shortName(c.Name),
		Path:          c.Name,
		LifespanCount: c.LifespanCount,
		Parameters:    params,
	}
}

// shortName returns the last segment of a resource name.
func shortName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
