package pipeline

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/gonka-ai/inference-gateway/internal/apierr"
	"github.com/gonka-ai/inference-gateway/internal/registry"
	"github.com/gonka-ai/inference-gateway/internal/session"
	"github.com/gonka-ai/inference-gateway/internal/telemetry"
	"github.com/gonka-ai/inference-gateway/internal/wire"
)

// nonStreamBackendResponse is the subset of an OpenAI chat completion
// response this gateway inspects before passing the body through verbatim.
type nonStreamBackendResponse struct {
	Choices []struct {
		Message wire.Message `json:"message"`
	} `json:"choices"`
	Usage wire.Usage `json:"usage"`
}

// forwardNonStream forwards a non-streaming chat completion request to the
// resolved backend, passes its response through verbatim, and always
// records usage afterward regardless of outcome.
func (p *Pipeline) forwardNonStream(w http.ResponseWriter, r *http.Request, backend registry.Backend, req wire.ChatCompletionRequest, meter *usageMeter, sessionID string) {
	ctx, span := telemetry.Tracer("pipeline").Start(r.Context(), "forward.non_stream",
		trace.WithAttributes(telemetry.ModelAttributes(meter.modelName, backend.Tier, backend.BackendURL)...))
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		apierr.Write(w, r, apierr.New(apierr.KindInternal, "failed to encode upstream request"))
		return
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.BackendURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		apierr.Write(w, r, apierr.New(apierr.KindInternal, "failed to build upstream request"))
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")

	resp, err := p.NonStreamClient.Do(upstreamReq)
	if err != nil {
		meter.record(wire.Usage{})
		apierr.Write(w, r, apierr.BackendUnavailable(meter.modelName))
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		meter.record(wire.Usage{})
		apierr.Write(w, r, apierr.BackendUnavailable(meter.modelName))
		return
	}

	if resp.StatusCode != http.StatusOK {
		// Backend-side non-200 responses pass through verbatim; the
		// gateway never re-wraps upstream error bodies.
		meter.record(wire.Usage{})
		copyPassthroughHeaders(w, resp)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(respBody)
		return
	}

	var parsed nonStreamBackendResponse
	_ = json.Unmarshal(respBody, &parsed) // best-effort: usage extraction never blocks the passthrough

	meter.record(parsed.Usage)
	appendSessionTurn(p.Sessions, sessionID, req, parsed)

	copyPassthroughHeaders(w, resp)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBody)
}

func copyPassthroughHeaders(w http.ResponseWriter, resp *http.Response) {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
}

// appendSessionTurn appends the caller's last user message and the
// backend's assistant reply to the session history, matching
// _forward_response's post-response session append. Only applies to
// non-streaming calls; see the pipeline package doc for the streaming
// open-question decision.
func appendSessionTurn(store *session.Store, sessionID string, req wire.ChatCompletionRequest, resp nonStreamBackendResponse) {
	if sessionID == "" || len(resp.Choices) == 0 {
		return
	}

	var lastUser *wire.Message
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = &req.Messages[i]
			break
		}
	}
	if lastUser == nil {
		return
	}

	store.Append(sessionID, []wire.Message{*lastUser, resp.Choices[0].Message})
}
