package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/quorum/internal/config"
	"github.com/normanking/quorum/internal/data"
)

// ═══════════════════════════════════════════════════════════════════════════
// TEST HELPERS
// ═══════════════════════════════════════════════════════════════════════════

func newTestServer(t *testing.T, opts ...Option) (*Server, *data.Store) {
	t.Helper()
	store, err := data.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 8400}
	return New(cfg, store, nil, opts...), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// ═══════════════════════════════════════════════════════════════════════════
// HEALTH
// ═══════════════════════════════════════════════════════════════════════════

func TestHealthOK(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestHealthDegraded(t *testing.T) {
	srv, store := newTestServer(t)
	store.Close()

	rec := doJSON(t, srv.Handler(), "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// AUTH
// ═══════════════════════════════════════════════════════════════════════════

func newAuthedServer(t *testing.T, token string) *Server {
	t.Helper()
	store, err := data.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 8400, APIToken: token}, store, nil)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	srv := newAuthedServer(t, "secret")

	rec := doJSON(t, srv.Handler(), "GET", "/api/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	srv := newAuthedServer(t, "secret")

	req := httptest.NewRequest("GET", "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAcceptsQueryParam(t *testing.T) {
	srv := newAuthedServer(t, "secret")

	rec := doJSON(t, srv.Handler(), "GET", "/api/conversations?token=secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsWrongToken(t *testing.T) {
	srv := newAuthedServer(t, "secret")

	req := httptest.NewRequest("GET", "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthSkipsAuth(t *testing.T) {
	srv := newAuthedServer(t, "secret")

	rec := doJSON(t, srv.Handler(), "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// CONVERSATIONS
// ═══════════════════════════════════════════════════════════════════════════

func TestCreateAndGetConversation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), "POST", "/api/conversations", map[string]string{"title": "Debate club"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var conv data.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "Debate club", conv.Title)

	rec = doJSON(t, srv.Handler(), "GET", "/api/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got data.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, conv.ID, got.ID)
}

func TestCreateConversationBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/conversations", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListConversationsEmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), "GET", "/api/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}

func TestListConversations(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.CreateConversation(context.Background(), "one")
	require.NoError(t, err)
	_, err = store.CreateConversation(context.Background(), "two")
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), "GET", "/api/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []data.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestGetConversationNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), "GET", "/api/conversations/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteConversation(t *testing.T) {
	srv, store := newTestServer(t)
	conv, err := store.CreateConversation(context.Background(), "doomed")
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), "DELETE", "/api/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv.Handler(), "DELETE", "/api/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
