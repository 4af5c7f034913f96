// Package wire defines the OpenAI-compatible request/response types the
// gateway accepts and emits. These are intentionally narrow: only the
// fields the Request Pipeline actually reads or sets are declared, mirrored
// on the prototype's own minimal parsing (gateway/main.py never validated
// a full OpenAI schema either).
package wire

import "encoding/json"

// ContentPart is one element of a multimodal message's content array.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is one chat turn. Content is either a plain string or an array of
// ContentPart — json.RawMessage defers that decision until LastUserText
// needs it, matching the prototype's duck-typed str | list[dict] handling.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Text extracts the plain-text content of a message, joining multimodal
// text parts with a space and ignoring non-text parts (images, etc.),
// exactly as the prototype's tiering resolver does.
func (m Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		return asString
	}

	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err == nil {
		out := ""
		for i, p := range parts {
			if p.Type != "text" {
				continue
			}
			if i > 0 && out != "" {
				out += " "
			}
			out += p.Text
		}
		return out
	}

	return ""
}

// ChatCompletionRequest is the /v1/chat/completions request body.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// LastUserText returns the text content of the last message with role
// "user", or "" if there is none.
func (r ChatCompletionRequest) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Text()
		}
	}
	return ""
}

// Usage mirrors OpenAI's usage block and the prototype's UsageRecord token
// fields.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelPermission is the (always-empty) permission list OpenAI's model list
// response carries; kept only for wire-shape compatibility.
type ModelPermission struct{}

// ModelEntry is one item of the /v1/models response, matching
// router.py's list_models() field-for-field.
type ModelEntry struct {
	ID         string            `json:"id"`
	Object     string            `json:"object"`
	Created    int64             `json:"created"`
	OwnedBy    string            `json:"owned_by"`
	Permission []ModelPermission `json:"permission"`
	Root       string            `json:"root"`
	Parent     *string           `json:"parent"`
}

// ModelList is the /v1/models response envelope.
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status   string `json:"status"`
	Models   int    `json:"models"`
	APIKeys  int    `json:"api_keys"`
	Sessions int    `json:"sessions"`
}

// UsageAggregate is one row of a /v1/usage aggregation response (by key,
// by session, breakdown), matching metering.py's query shapes.
type UsageAggregate struct {
	Key              string  `json:"key"`
	RequestCount     int     `json:"request_count"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
}

// UsageResponse is the /v1/usage response envelope.
type UsageResponse struct {
	Since      int64            `json:"since,omitempty"`
	Aggregates []UsageAggregate `json:"aggregates"`
}
