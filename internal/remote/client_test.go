package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/comigor/lumina/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

var testTimeouts = config.ClientConfig{
	AskTimeout:     2 * time.Second,
	HistoryTimeout: 2 * time.Second,
	DeleteTimeout:  2 * time.Second,
}

func newTestClient(t *testing.T, h http.Handler, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.ServerConfig{BaseURL: srv.URL + "/"}, testTimeouts, staticToken(token))
}

func TestAsk_Success(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ai/ask", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"response":"hi back","conversation_id":17}`)
	}), "tok")

	out := c.Ask(context.Background(), AskRequest{Text: "hello"})
	require.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, "hi back", out.Reply)
	assert.Equal(t, "17", out.ConversationID)
	assert.Equal(t, "hello", got["message"])
	assert.Nil(t, got["conversation_id"])
}

func TestAsk_SendsNumericConversationID(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, `{"response":"ok"}`)
	}), "")

	out := c.Ask(context.Background(), AskRequest{Text: "again", ConversationID: "7"})
	require.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, "", out.ConversationID)
	assert.JSONEq(t, `7`, string(raw["conversation_id"]))
}

func TestAsk_AnonymousOmitsAuthorization(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["Authorization"]
		assert.False(t, present)
		_, _ = io.WriteString(w, `{"response":"ok","conversation_id":"abc"}`)
	}), "")

	out := c.Ask(context.Background(), AskRequest{Text: "hello"})
	require.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, "abc", out.ConversationID)
}

func TestAsk_RateLimited(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}), "tok")

	out := c.Ask(context.Background(), AskRequest{Text: "hello"})
	require.Equal(t, KindRateLimited, out.Kind)
	assert.ErrorIs(t, out.Err, ErrRateLimited)
	assert.NotErrorIs(t, out.Err, ErrServerError)
}

func TestAsk_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}), "tok")

	out := c.Ask(context.Background(), AskRequest{Text: "hello"})
	require.Equal(t, KindFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrServerError)
	var se *StatusError
	require.True(t, errors.As(out.Err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestAsk_MalformedBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}), "tok")

	out := c.Ask(context.Background(), AskRequest{Text: "hello"})
	require.Equal(t, KindFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrServerError)
}

func TestAsk_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(config.ServerConfig{BaseURL: base}, testTimeouts, staticToken("tok"))
	out := c.Ask(context.Background(), AskRequest{Text: "hello"})
	require.Equal(t, KindFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrUnreachable)
}

func TestAsk_TimeoutAbortsTransport(t *testing.T) {
	release := make(chan struct{})
	var aborted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			aborted.Store(true)
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	timeouts := testTimeouts
	timeouts.AskTimeout = 50 * time.Millisecond
	c := NewClient(config.ServerConfig{BaseURL: srv.URL}, timeouts, staticToken("tok"))

	start := time.Now()
	out := c.Ask(context.Background(), AskRequest{Text: "hello"})
	require.Equal(t, KindFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrUnreachable)
	assert.Less(t, time.Since(start), time.Second)
	assert.Eventually(t, aborted.Load, time.Second, 10*time.Millisecond)
}

func TestFetchHistory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ai/history", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"history":[
			{"id":1,"conversation_id":3,"message":"hello","response":"hi","timestamp":"2024-05-01T10:00:00"},
			{"id":2,"conversation_id":"3","message":"more","response":"sure","timestamp":null}
		]}`)
	}), "tok")

	recs, err := c.FetchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Record{ID: "1", ConversationID: "3", Message: "hello", Response: "hi", Timestamp: "2024-05-01T10:00:00"}, recs[0])
	assert.Equal(t, ID("3"), recs[1].ConversationID)
	assert.Empty(t, recs[1].Timestamp)
}

func TestFetchHistory_NoTokenSkipsCall(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), "")

	_, err := c.FetchHistory(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, calls.Load())
}

func TestFetchHistory_Unauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), "expired")

	_, err := c.FetchHistory(context.Background())
	require.ErrorIs(t, err, ErrAuthRejected)
	assert.NotErrorIs(t, err, ErrServerError)
}

func TestDeleteConversation(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}), "tok")

	require.NoError(t, c.DeleteConversation(context.Background(), "42"))
	assert.Equal(t, "/ai/conversation/42", path)
}

func TestDeleteConversation_Failures(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), "tok")
	assert.ErrorIs(t, c.DeleteConversation(context.Background(), "42"), ErrServerError)

	anon := newTestClient(t, http.NotFoundHandler(), "")
	assert.ErrorIs(t, anon.DeleteConversation(context.Background(), "42"), ErrNoSession)
}

func TestID_JSON(t *testing.T) {
	for _, tc := range []struct {
		id   ID
		want string
	}{
		{"", `null`},
		{"12", `12`},
		{"007", `"007"`},
		{"local-abc", `"local-abc"`},
	} {
		b, err := json.Marshal(tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(b))
	}

	var ids []ID
	require.NoError(t, json.Unmarshal([]byte(`[1, "x", null, 9007199254740993]`), &ids))
	assert.Equal(t, []ID{"1", "x", "", "9007199254740993"}, ids)
}
