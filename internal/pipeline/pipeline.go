// Package pipeline implements the Request Pipeline: the orchestrator that
// takes an incoming /v1/chat/completions call through
// auth -> rate-check -> parse -> model-resolve -> [session-merge] ->
// forward -> meter, plus /v1/models, /health, and /v1/usage. Grounded on
// original_source/gateway/main.py's chat_completions/_forward_response/
// _stream_response.
//
// Session history: only a non-streaming call appends a turn (the last user
// message and the assistant reply) to its session. A streaming call records
// usage but adds no turn to the session.
package pipeline

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gonka-ai/inference-gateway/internal/apierr"
	"github.com/gonka-ai/inference-gateway/internal/auth"
	"github.com/gonka-ai/inference-gateway/internal/ledger"
	"github.com/gonka-ai/inference-gateway/internal/log"
	"github.com/gonka-ai/inference-gateway/internal/ratelimit"
	"github.com/gonka-ai/inference-gateway/internal/registry"
	"github.com/gonka-ai/inference-gateway/internal/session"
	"github.com/gonka-ai/inference-gateway/internal/tiering"
	"github.com/gonka-ai/inference-gateway/internal/wire"
)

const (
	sessionHeader = "X-Gonka-Session-ID"
	tierHeader    = "X-Gonka-Tier"
)

// Pipeline wires every gateway component into the HTTP handlers that serve
// the OpenAI-compatible surface.
type Pipeline struct {
	Auth     *auth.Store
	Quota    *ratelimit.Limiter
	Registry *registry.Registry
	Tiering  *tiering.Resolver
	Sessions *session.Store
	Ledger   *ledger.Ledger

	// StreamClient has no client-wide timeout (see httpx.NewClient); used
	// for streaming forwards whose body legitimately stays open.
	StreamClient *http.Client
	// NonStreamClient is bounded to httpx.CompletionTimeout.
	NonStreamClient *http.Client

	// VLLMURL is carried from config but read by no handler (/health does
	// not report it); the pipeline always routes through the resolved
	// backend's own URL.
	VLLMURL string
	// AdminKey, if non-empty, is the principal key allowed to read
	// global usage aggregates via /v1/usage.
	AdminKey string
}

// authenticate extracts and validates the bearer token, returning the
// matched Principal or writing an invalid_api_key error.
func (p *Pipeline) authenticate(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	token := auth.ExtractToken(r)
	if token == "" {
		apierr.Write(w, r, apierr.New(apierr.KindInvalidAPIKey, "missing API key"))
		return auth.Principal{}, false
	}
	principal, ok := p.Auth.Validate(token)
	if !ok {
		apierr.Write(w, r, apierr.New(apierr.KindInvalidAPIKey, "invalid API key"))
		return auth.Principal{}, false
	}
	return principal, true
}

// checkQuota enforces the per-principal RPM window, writing a
// rate_limit_exceeded error on violation.
func (p *Pipeline) checkQuota(w http.ResponseWriter, r *http.Request, principal auth.Principal) bool {
	if err := p.Quota.CheckRequest(principal.Key, principal.RPMLimit); err != nil {
		if qerr, ok := err.(*ratelimit.QuotaExceededError); ok {
			apierr.Write(w, r, apierr.RateLimited(qerr.Error(), qerr.RetryAfter))
			return false
		}
		apierr.Write(w, r, apierr.New(apierr.KindRateLimitExceeded, err.Error()))
		return false
	}
	return true
}

// resolveModel determines which model this request routes to, following
// the tier-hint / explicit-model / content-rule / default order, then
// resolves it against the catalog.
func (p *Pipeline) resolveModel(req wire.ChatCompletionRequest, tierHint string) (registry.Backend, string, *apierr.Error) {
	modelName := req.Model
	if tierHint != "" || modelName == "" {
		if resolved := p.Tiering.Resolve(req.LastUserText(), req.Model, tierHint); resolved != "" {
			modelName = resolved
		}
	}

	if modelName == "" {
		if def, ok := p.Registry.Default(); ok {
			modelName = def.Name
		} else {
			return registry.Backend{}, "", apierr.New(apierr.KindModelRequired, "no model specified and no default model is configured")
		}
	}

	backend, err := p.Registry.Resolve(modelName)
	if err != nil {
		nfe, _ := err.(*registry.NotFoundError)
		available := []string{}
		if nfe != nil {
			available = nfe.Available
		}
		return registry.Backend{}, "", apierr.ModelNotFound(modelName, available)
	}
	return backend, modelName, nil
}

// ServeChatCompletions handles POST /v1/chat/completions.
func (p *Pipeline) ServeChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithContext(ctx, log.WithComponent("pipeline"))

	principal, ok := p.authenticate(w, r)
	if !ok {
		return
	}
	if !p.checkQuota(w, r, principal) {
		return
	}

	var req wire.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, r, apierr.New(apierr.KindBadRequest, "invalid JSON body: "+err.Error()))
		return
	}
	if len(req.Messages) == 0 {
		apierr.Write(w, r, apierr.New(apierr.KindBadRequest, "messages must not be empty"))
		return
	}

	tierHint := r.Header.Get(tierHeader)
	backend, modelName, rerr := p.resolveModel(req, tierHint)
	if rerr != nil {
		apierr.Write(w, r, rerr)
		return
	}

	sessionID := r.Header.Get(sessionHeader)
	if sessionID != "" {
		p.Sessions.GetOrCreate(sessionID, principal.Key)
		req.Messages = p.Sessions.InjectHistory(sessionID, req.Messages)
	}
	req.Model = backend.ModelID

	logger.Info().
		Str(log.FieldModel, modelName).
		Str(log.FieldTier, backend.Tier).
		Str(log.FieldBackendURL, backend.BackendURL).
		Str(log.FieldPrincipalID, auth.Mask(principal.Key)).
		Str(log.FieldSessionID, sessionID).
		Msg("routing chat completion")

	meter := &usageMeter{
		pipeline:     p,
		principalKey: principal.Key,
		modelName:    modelName,
		sessionID:    sessionID,
		start:        time.Now(),
	}

	if req.Stream {
		p.forwardStream(w, r, backend, req, meter)
		return
	}
	p.forwardNonStream(w, r, backend, req, meter, sessionID)
}

// usageMeter carries the bookkeeping context a forward needs to meter
// usage after the response completes, regardless of streaming/non-stream
// path or whether the backend call ultimately failed mid-flight.
type usageMeter struct {
	pipeline     *Pipeline
	principalKey string
	modelName    string
	sessionID    string
	start        time.Time
}

// record finalizes usage accounting: TPM window + durable ledger row. This
// is the guaranteed post-call step both forward paths always execute,
// mirroring _forward_response/_stream_response's finally-equivalent. Latency
// is measured from meter construction (just before the backend call) to
// here, so it covers the full forward regardless of stream/non-stream path.
func (m *usageMeter) record(usage wire.Usage) {
	if usage.TotalTokens > 0 {
		m.pipeline.Quota.RecordTokens(m.principalKey, usage.TotalTokens)
	}
	latencyMS := float64(time.Since(m.start)) / float64(time.Millisecond)
	err := m.pipeline.Ledger.Record(ledger.Record{
		APIKey:           m.principalKey,
		Model:            m.modelName,
		SessionID:        m.sessionID,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		LatencyMS:        latencyMS,
		Timestamp:        time.Now(),
	})
	if err != nil {
		log.WithComponent("pipeline").Error().Err(err).Msg("failed to record usage")
	}
}
