package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comigor/lumina/internal/auth"
	"github.com/comigor/lumina/internal/config"
)

func testConfig(t *testing.T, h http.Handler) *config.Config {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &config.Config{
		Backend: config.BackendLumina,
		Server:  config.ServerConfig{BaseURL: srv.URL},
		Client: config.ClientConfig{
			AskTimeout:     2 * time.Second,
			HistoryTimeout: 2 * time.Second,
			DeleteTimeout:  2 * time.Second,
		},
		Auth: config.AuthConfig{DBPath: filepath.Join(t.TempDir(), "lumina.db")},
	}
}

func newTestApp(t *testing.T, h http.Handler) (*app, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a := newApp(testConfig(t, h), &out)
	t.Cleanup(func() { _ = a.Close() })
	return a, &out
}

func TestREPL_ConversationLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ai/ask", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"Hi!","conversation_id":5}`)
	})
	a, out := newTestApp(t, mux)

	script := strings.Join([]string{
		"hello",
		"/list",
		"/rename 5 Trip plans",
		"/list trip",
		"/new",
		"/select 5",
		"/delete 5",
		"/list",
		"/quit",
		"never sent",
	}, "\n")
	require.NoError(t, a.repl(context.Background(), strings.NewReader(script)))

	got := out.String()
	assert.Contains(t, got, "[AI] Hi!")
	assert.Contains(t, got, "* 5 ")
	assert.Contains(t, got, `Renamed 5 to "Trip plans".`)
	assert.Contains(t, got, "== Trip plans ==")
	assert.Contains(t, got, "[U] hello")
	assert.Contains(t, got, "Deleted 5.")
	assert.Contains(t, got, "No conversations.")
	assert.NotContains(t, got, "never sent")
}

func TestREPL_OfflineFallbackAndErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ai/ask", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	a, out := newTestApp(t, mux)
	require.NoError(t, a.creds.SetIdentity(auth.Identity{Name: "ada lovelace"}))

	require.NoError(t, a.repl(context.Background(), strings.NewReader("hi there\n/select nope\n/bogus\n")))

	got := out.String()
	assert.Contains(t, got, "[AI] Hello! I'm **Lumina AI**")
	assert.Contains(t, got, "unknown conversation")
	assert.Contains(t, got, "Unknown command /bogus")
	assert.Len(t, a.ctrl.Snapshot().Conversations, 1)
}

func TestHistory_RejectedTokenSignsOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ai/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	a, out := newTestApp(t, mux)
	require.NoError(t, a.creds.SetTokens("stale", "r"))

	err := a.history.Run(context.Background(), a.ctrl)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Your session has expired")
	assert.Empty(t, a.creds.Token())
}

func TestHistory_LoadsAndSelectsNewest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ai/history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"history":[
			{"id":1,"conversation_id":3,"message":"first","response":"a"},
			{"id":2,"conversation_id":12,"message":"second","response":"b"}
		]}`)
	})
	a, out := newTestApp(t, mux)
	require.NoError(t, a.creds.SetTokens("tok", ""))

	require.NoError(t, a.history.Run(context.Background(), a.ctrl))
	a.list("")
	a.printActive()

	got := out.String()
	assert.Contains(t, got, "* 12 ")
	assert.Contains(t, got, "== second ==")
	assert.Contains(t, got, "[AI] b")
}

func TestREPL_ClearRemovesEveryConversation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ai/ask", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"ok","conversation_id":8}`)
	})
	a, out := newTestApp(t, mux)

	require.NoError(t, a.repl(context.Background(), strings.NewReader("first\n/new\nsecond\n/clear\n/list\n")))

	got := out.String()
	assert.Contains(t, got, "All conversations cleared.")
	assert.Contains(t, got, "No conversations.")
	snap := a.ctrl.Snapshot()
	assert.Empty(t, snap.ActiveID)
	assert.Empty(t, snap.Conversations)
}
