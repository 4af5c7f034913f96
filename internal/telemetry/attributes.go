// Package telemetry provides OpenTelemetry tracing utilities for the gateway.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the gateway.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Pipeline attributes
	PipelinePhaseKey    = "pipeline.phase"
	PipelinePrincipalID = "pipeline.principal_id"
	PipelineSessionID   = "pipeline.session_id"

	// Model/tiering attributes
	ModelNameKey    = "model.name"
	ModelTierKey    = "model.tier"
	ModelBackendKey = "model.backend_url"

	// Usage attributes
	UsagePromptTokensKey     = "usage.prompt_tokens"
	UsageCompletionTokensKey = "usage.completion_tokens"
	UsageTotalTokensKey      = "usage.total_tokens"

	// Streaming attributes
	StreamEnabledKey = "stream.enabled"
	StreamEventsKey  = "stream.events"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PipelineAttributes creates request-pipeline span attributes.
func PipelineAttributes(phase, principalID, sessionID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if phase != "" {
		attrs = append(attrs, attribute.String(PipelinePhaseKey, phase))
	}
	if principalID != "" {
		attrs = append(attrs, attribute.String(PipelinePrincipalID, principalID))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(PipelineSessionID, sessionID))
	}
	return attrs
}

// ModelAttributes creates model-resolution span attributes.
func ModelAttributes(name, tier, backendURL string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ModelNameKey, name),
		attribute.String(ModelTierKey, tier),
		attribute.String(ModelBackendKey, backendURL),
	}
}

// UsageAttributes creates post-stream/non-stream usage span attributes.
func UsageAttributes(prompt, completion, total int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(UsagePromptTokensKey, prompt),
		attribute.Int(UsageCompletionTokensKey, completion),
		attribute.Int(UsageTotalTokensKey, total),
	}
}

// StreamAttributes creates streaming-related span attributes.
func StreamAttributes(enabled bool, events int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(StreamEnabledKey, enabled),
		attribute.Int(StreamEventsKey, events),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
