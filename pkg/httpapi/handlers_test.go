package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/quantumflow/aichat/pkg/chat"
	"github.com/quantumflow/aichat/pkg/gateway"
	"github.com/quantumflow/aichat/pkg/relay"
	"github.com/quantumflow/aichat/pkg/store"
)

type stubGateway struct {
	mu         sync.Mutex
	calls      int
	completeFn func(history []chat.Message, opts gateway.CompleteOptions) (chat.Message, error)
	generateFn func(prompt, size string) (chat.Message, error)
}

func (s *stubGateway) Complete(_ context.Context, history []chat.Message, opts gateway.CompleteOptions) (chat.Message, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.completeFn == nil {
		return chat.NewAssistantMessage("ok", "stub-model", nil), nil
	}
	return s.completeFn(history, opts)
}

func (s *stubGateway) GenerateImage(_ context.Context, prompt, size string) (chat.Message, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.generateFn == nil {
		return chat.NewImageMessage(prompt, "data:image/png;base64,xxxx", size), nil
	}
	return s.generateFn(prompt, size)
}

func (s *stubGateway) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestChatHandlerSuccess(t *testing.T) {
	gw := &stubGateway{completeFn: func(history []chat.Message, opts gateway.CompleteOptions) (chat.Message, error) {
		require.Len(t, history, 1)
		require.Equal(t, "hello", history[0].Content)
		return chat.NewAssistantMessage("hi there", "stub-model", &chat.Usage{TotalTokens: 9}), nil
	}}
	rec := postJSON(t, NewChatHandler(gw), map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "hi there", body["response"])
	require.Equal(t, "stub-model", body["model"])
}

func TestChatHandlerRejectsEmptyMessages(t *testing.T) {
	gw := &stubGateway{}
	rec := postJSON(t, NewChatHandler(gw), map[string]any{"messages": []any{}})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Messages array is required", body["error"])
	require.Zero(t, gw.callCount())
}

func TestChatHandlerRejectsMalformedBody(t *testing.T) {
	gw := &stubGateway{}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	NewChatHandler(gw)(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, gw.callCount())
}

func TestChatHandlerUpstreamFailure(t *testing.T) {
	gw := &stubGateway{completeFn: func([]chat.Message, gateway.CompleteOptions) (chat.Message, error) {
		return chat.Message{}, errors.WithMessage(gateway.ErrUpstream, "provider down")
	}}
	rec := postJSON(t, NewChatHandler(gw), map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Failed to generate response", body["error"])
	require.Contains(t, body["details"], "provider down")
}

func TestChatHandlerGetIsIdempotent(t *testing.T) {
	handler := NewChatHandler(&stubGateway{})

	first := httptest.NewRecorder()
	handler(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	handler(second, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, first.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestImageHandlerSuccess(t *testing.T) {
	rec := postJSON(t, NewImageHandler(&stubGateway{}), map[string]any{"prompt": "a cat"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "a cat", body["prompt"])
	require.Equal(t, gateway.DefaultImageSize, body["size"])
	require.Equal(t, gateway.DefaultImageQuality, body["quality"])
	require.Contains(t, body["image"], "data:image/png;base64,")
}

func TestImageHandlerRejectsMissingPrompt(t *testing.T) {
	gw := &stubGateway{}
	rec := postJSON(t, NewImageHandler(gw), map[string]any{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Prompt is required and must be a string", body["error"])
	require.Zero(t, gw.callCount())
}

func TestImageHandlerUpstreamFailure(t *testing.T) {
	gw := &stubGateway{generateFn: func(string, string) (chat.Message, error) {
		return chat.Message{}, gateway.ErrEmptyResponse
	}}
	rec := postJSON(t, NewImageHandler(gw), map[string]any{"prompt": "a cat"})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Failed to generate image", body["error"])
}

func TestHealthHandler(t *testing.T) {
	st := store.New()
	st.GetOrCreate("c1", "u1")
	rl := relay.New(context.Background(), st, &stubGateway{}, relay.Options{})

	rec := httptest.NewRecorder()
	NewHealthHandler(st, rl, time.Now().Add(-time.Minute))(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "healthy", body["status"])
	require.EqualValues(t, 1, body["activeConversations"])
	require.EqualValues(t, 0, body["connectedClients"])
	require.GreaterOrEqual(t, body["uptimeSeconds"], float64(60))
}

func TestStoreStatsHandler(t *testing.T) {
	st := store.New()
	st.GetOrCreate("c1", "u1")
	require.NoError(t, st.Append("c1", chat.NewUserMessage("hello")))

	rec := httptest.NewRecorder()
	NewStoreStatsHandler(st)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.EqualValues(t, 1, body["conversations"])
	require.EqualValues(t, 1, body["messages"])
}

func TestMetricsHandler(t *testing.T) {
	st := store.New()
	rl := relay.New(context.Background(), st, &stubGateway{}, relay.Options{})

	rec := httptest.NewRecorder()
	NewMetricsHandler(st, rl, time.Now())(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Greater(t, body["goroutines"], float64(0))
	require.Greater(t, body["heapAllocBytes"], float64(0))
}

func TestHandlersRejectUnsupportedMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChatHandler(&stubGateway{})(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(store.New(), relay.New(context.Background(), store.New(), &stubGateway{}, relay.Options{}), time.Now())(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
