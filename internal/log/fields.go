package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldPrincipalID   = "principal_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPhase     = "phase"

	// Gateway domain fields
	FieldModel      = "model"
	FieldTier       = "tier"
	FieldBackendURL = "backend_url"
	FieldTotalTok   = "total_tokens"
	FieldLatencyMS  = "latency_ms"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
