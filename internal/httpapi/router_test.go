package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/orchestrator"
	"github.com/brgw/gateway/internal/truncation"
)

type fakeTokens struct{}

func (fakeTokens) GetAccessToken(ctx context.Context) (string, error) { return "tok", nil }
func (fakeTokens) ProfileArn() string                                 { return "" }

func newTestRouter(t *testing.T, upstream http.HandlerFunc) http.Handler {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	orch := orchestrator.New(orchestrator.Config{
		Tokens:          fakeTokens{},
		Cache:           truncation.New(time.Minute, 100),
		Logger:          zap.NewNop(),
		ChatURLTemplate: srv.URL,
		DefaultModel:    "claude-default",
	})
	return NewRouter(Config{Orchestrator: orch, Logger: zap.NewNop(), ReleaseMode: true})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"timestamp"`)
	assert.Contains(t, w.Body.String(), `"version"`)
}

func TestRootEndpoint(t *testing.T) {
	r := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"message"`)
	assert.Contains(t, w.Body.String(), `"version"`)
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	r := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"hello there"}`))
	})

	body := `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat.completion")
}

func TestChatCompletionsRejectsEmptyMessages(t *testing.T) {
	r := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("upstream should not be reached for an invalid request")
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4","messages":[]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "\"error\"")
}

func TestMessagesNonStreaming(t *testing.T) {
	r := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"hi from upstream"}`))
	})

	body := `{"model":"claude-3","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "\"type\":\"message\"")
}

func TestBearerAuthRejectsWrongKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("upstream should not be reached when auth fails")
	}))
	defer srv.Close()

	orch := orchestrator.New(orchestrator.Config{
		Tokens:          fakeTokens{},
		Cache:           truncation.New(time.Minute, 100),
		Logger:          zap.NewNop(),
		ChatURLTemplate: srv.URL,
		ProxyAPIKey:     "secret",
	})
	r := NewRouter(Config{Orchestrator: orch, Logger: zap.NewNop(), ReleaseMode: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
