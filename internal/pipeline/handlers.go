package pipeline

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gonka-ai/inference-gateway/internal/apierr"
	"github.com/gonka-ai/inference-gateway/internal/ledger"
	"github.com/gonka-ai/inference-gateway/internal/wire"
)

// ServeModels handles GET /v1/models.
func (p *Pipeline) ServeModels(w http.ResponseWriter, r *http.Request) {
	if _, ok := p.authenticate(w, r); !ok {
		return
	}
	list := wire.ModelList{Object: "list", Data: p.Registry.List()}
	writeJSON(w, http.StatusOK, list)
}

// ServeHealth handles GET /health. No auth required, matching the
// prototype's passive health endpoint.
func (p *Pipeline) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := wire.HealthResponse{
		Status:   "ok",
		Models:   p.Registry.Count(),
		APIKeys:  p.Auth.Count(),
		Sessions: p.Sessions.ActiveCount(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// ServeUsage handles GET /v1/usage. Scoped to the caller's own key unless
// ?scope=global is requested and the caller authenticates as the
// configured admin key.
func (p *Pipeline) ServeUsage(w http.ResponseWriter, r *http.Request) {
	principal, ok := p.authenticate(w, r)
	if !ok {
		return
	}

	since := time.Time{}
	if s := r.URL.Query().Get("since_hours"); s != "" {
		if hours, err := strconv.Atoi(s); err == nil && hours > 0 {
			since = time.Now().Add(-time.Duration(hours) * time.Hour)
		}
	}

	switch r.URL.Query().Get("scope") {
	case "global":
		if p.AdminKey == "" || principal.Key != p.AdminKey {
			apierr.WriteKind(w, r, apierr.KindInvalidAPIKey, "global usage requires the admin key")
			return
		}
		stats, err := p.Ledger.Global(since)
		if err != nil {
			apierr.WriteKind(w, r, apierr.KindInternal, "failed to compute usage")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case "breakdown":
		rows, err := p.Ledger.Breakdown(principal.Key, since)
		if err != nil {
			apierr.WriteKind(w, r, apierr.KindInternal, "failed to compute usage")
			return
		}
		writeJSON(w, http.StatusOK, toUsageResponse(since, rows))
	default:
		agg, err := p.Ledger.ByKey(principal.Key, since)
		if err != nil {
			apierr.WriteKind(w, r, apierr.KindInternal, "failed to compute usage")
			return
		}
		writeJSON(w, http.StatusOK, toUsageResponse(since, []ledger.Aggregate{agg}))
	}
}

func toUsageResponse(since time.Time, rows []ledger.Aggregate) wire.UsageResponse {
	out := wire.UsageResponse{Aggregates: make([]wire.UsageAggregate, 0, len(rows))}
	if !since.IsZero() {
		out.Since = since.Unix()
	}
	for _, row := range rows {
		out.Aggregates = append(out.Aggregates, wire.UsageAggregate{
			Key:              row.Key,
			RequestCount:     row.RequestCount,
			PromptTokens:     row.PromptTokens,
			CompletionTokens: row.CompletionTokens,
			TotalTokens:      row.TotalTokens,
			AvgLatencyMS:     row.AvgLatencyMS,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
