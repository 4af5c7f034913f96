package apierr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWrite_SetsStatusAndBody(t *testing.T) {
	cases := []struct {
		kind       Kind
		wantStatus int
		wantType   string
	}{
		{KindInvalidAPIKey, http.StatusUnauthorized, "invalid_request_error"},
		{KindRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_error"},
		{KindTokenRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_error"},
		{KindBadRequest, http.StatusBadRequest, "invalid_request_error"},
		{KindModelRequired, http.StatusBadRequest, "invalid_request_error"},
		{KindModelNotFound, http.StatusNotFound, "invalid_request_error"},
		{KindBackendUnavailable, http.StatusServiceUnavailable, "server_error"},
		{KindInternal, http.StatusInternalServerError, "server_error"},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)

			Write(rr, req, New(tc.kind, "boom"))

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			var body Body
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error.Type != tc.wantType {
				t.Errorf("type = %q, want %q", body.Error.Type, tc.wantType)
			}
			if body.Error.Code != string(tc.kind) {
				t.Errorf("code = %q, want %q", body.Error.Code, tc.kind)
			}
			if body.Error.Message != "boom" {
				t.Errorf("message = %q, want boom", body.Error.Message)
			}
		})
	}
}

func TestWrite_RateLimitedSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)

	Write(rr, req, RateLimited("slow down", 42))

	if got := rr.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("Retry-After = %q, want 42", got)
	}
}

func TestWrite_TokenRateLimitedHasNoRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)

	Write(rr, req, TokenRateLimited("too many tokens"))

	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("Retry-After = %q, want empty", got)
	}
}

func TestModelNotFound_ListsAvailable(t *testing.T) {
	err := ModelNotFound("gpt-5", []string{"llama-3", "mixtral"})
	want := "model 'gpt-5' not found. Available models: llama-3, mixtral"
	if err.Message != want {
		t.Fatalf("Message = %q, want %q", err.Message, want)
	}
}

func TestBackendUnavailable_Message(t *testing.T) {
	err := BackendUnavailable("llama-3")
	want := "backend for model 'llama-3' is unavailable"
	if err.Message != want {
		t.Fatalf("Message = %q, want %q", err.Message, want)
	}
}

func TestRecoverer_ConvertsPanicToInternalError(t *testing.T) {
	handler := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body Body
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != string(KindInternal) {
		t.Errorf("code = %q, want %q", body.Error.Code, KindInternal)
	}
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(KindModelNotFound); got != http.StatusNotFound {
		t.Errorf("StatusFor(KindModelNotFound) = %d, want 404", got)
	}
	if got := StatusFor(Kind("unknown")); got != http.StatusInternalServerError {
		t.Errorf("StatusFor(unknown) = %d, want 500", got)
	}
}
