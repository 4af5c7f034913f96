package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/gonka-ai/inference-gateway/internal/apierr"
	"github.com/gonka-ai/inference-gateway/internal/log"
	"github.com/gonka-ai/inference-gateway/internal/registry"
	"github.com/gonka-ai/inference-gateway/internal/telemetry"
	"github.com/gonka-ai/inference-gateway/internal/wire"
)

const doneMarker = "data: [DONE]"

type streamChunk struct {
	Usage *wire.Usage `json:"usage"`
}

// forwardStream relays a streaming chat completion verbatim as
// server-sent events, opportunistically extracting the last-seen
// usage.total_tokens from the chunk stream, and always records usage once
// the stream ends (success, backend drop, or client disconnect) — the
// Stream Relay's guaranteed post-stream finalizer, matching
// _stream_response's always-runs accounting step.
func (p *Pipeline) forwardStream(w http.ResponseWriter, r *http.Request, backend registry.Backend, req wire.ChatCompletionRequest, meter *usageMeter) {
	ctx, span := telemetry.Tracer("pipeline").Start(r.Context(), "forward.stream",
		trace.WithAttributes(telemetry.ModelAttributes(meter.modelName, backend.Tier, backend.BackendURL)...))
	defer span.End()

	logger := log.WithContext(ctx, log.WithComponent("pipeline"))

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
	upstreamReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.StreamClient.Do(upstreamReq)
	if err != nil {
		// Nothing has been written to the client yet, so a normal error
		// envelope (not a synthetic SSE event) is still possible here.
		meter.record(wire.Usage{})
		apierr.Write(w, r, apierr.BackendUnavailable(meter.modelName))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		meter.record(wire.Usage{})
		copyPassthroughHeaders(w, resp)
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	var lastUsage wire.Usage
	events := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if _, werr := w.Write([]byte(line + "\n")); werr != nil {
			break
		}
		if canFlush {
			flusher.Flush()
		}

		if strings.HasPrefix(line, doneMarker) {
			_, _ = w.Write([]byte("\n"))
			if canFlush {
				flusher.Flush()
			}
			break
		}
		if strings.HasPrefix(line, "data: ") {
			events++
			if usage := extractUsage(line); usage != nil {
				lastUsage = *usage
			}
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Msg("stream read error, emitting synthetic backend_unavailable event")
		writeSyntheticErrorEvent(w, canFlush, flusher, meter.modelName)
	}

	span.SetAttributes(telemetry.StreamAttributes(true, events)...)
	// Streaming chunks reliably carry only usage.total_tokens (input is
	// unknown mid-stream), so the recorded row treats the observed total as
	// the output count and leaves input at zero, matching
	// _stream_response's accounting.
	meter.record(wire.Usage{CompletionTokens: lastUsage.TotalTokens, TotalTokens: lastUsage.TotalTokens})
}

// extractUsage opportunistically parses a "data: {...}" SSE line for a
// usage block, keeping the last value seen across the stream (some
// backends only populate usage on the final chunk).
func extractUsage(line string) *wire.Usage {
	payload := strings.TrimPrefix(line, "data: ")
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "[DONE]" {
		return nil
	}
	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil
	}
	return chunk.Usage
}

// writeSyntheticErrorEvent emits a synthetic SSE error event when the
// backend connection drops mid-stream, after response headers have
// already been committed to the client (so a normal HTTP error response
// is no longer possible).
func writeSyntheticErrorEvent(w http.ResponseWriter, canFlush bool, flusher http.Flusher, model string) {
	berr := apierr.BackendUnavailable(model)
	body := apierr.Body{Error: apierr.Detail{Message: berr.Message, Type: "server_error", Code: string(berr.Kind)}}
	buf, _ := json.Marshal(body)
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(buf)
	_, _ = w.Write([]byte("\n\n" + doneMarker + "\n\n"))
	if canFlush {
		flusher.Flush()
	}
}
