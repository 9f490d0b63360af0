package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aksel/sage/pkg/orchestrator"
	"github.com/aksel/sage/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedQuery struct {
	sessionKey string
	query      string
}

type fakeService struct {
	mu      sync.Mutex
	result  *orchestrator.Result
	err     error
	entries []session.ConversationEntry
	queries []recordedQuery
	cleared []string

	// emit simulates orchestrator observer events fired mid-query.
	emit func()
}

func (f *fakeService) RunQuery(ctx context.Context, sessionKey, query string) (*orchestrator.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, recordedQuery{sessionKey: sessionKey, query: query})
	emit := f.emit
	f.mu.Unlock()

	if emit != nil {
		emit()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeService) History(sessionKey string) ([]session.ConversationEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeService) ClearHistory(ctx context.Context, sessionKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.cleared = append(f.cleared, sessionKey)
	return nil
}

func (f *fakeService) lastQuery(t *testing.T) recordedQuery {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.queries)
	return f.queries[len(f.queries)-1]
}

func newTestServer(t *testing.T, svc QueryService) (*Server, *httptest.Server) {
	t.Helper()

	s, err := NewServer(Config{
		Port:         1,
		SharedSecret: "s3cret",
		Service:      svc,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func authedRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	return req
}

func doJSON(t *testing.T, req *http.Request, out interface{}) int {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestNewServer(t *testing.T) {
	svc := &fakeService{}

	t.Run("should reject an invalid port", func(t *testing.T) {
		_, err := NewServer(Config{SharedSecret: "x", Service: svc})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid port")
	})

	t.Run("should require a shared secret", func(t *testing.T) {
		_, err := NewServer(Config{Port: 8080, Service: svc})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shared secret is required")
	})

	t.Run("should require a query service", func(t *testing.T) {
		_, err := NewServer(Config{Port: 8080, SharedSecret: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query service is required")
	})
}

func TestHandleQuery(t *testing.T) {
	t.Run("should answer a query", func(t *testing.T) {
		svc := &fakeService{result: &orchestrator.Result{
			Query:     "what is 2+2",
			Route:     "general",
			Reasoning: "arithmetic",
			Answer:    "4",
		}}
		_, srv := newTestServer(t, svc)

		body := bytes.NewBufferString(`{"session_key":"alpha","query":"what is 2+2"}`)
		var result orchestrator.Result
		status := doJSON(t, authedRequest(t, http.MethodPost, srv.URL+"/v1/query", body), &result)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "4", result.Answer)
		assert.Equal(t, "general", result.Route)

		recorded := svc.lastQuery(t)
		assert.Equal(t, "alpha", recorded.sessionKey)
		assert.Equal(t, "what is 2+2", recorded.query)
	})

	t.Run("should reject missing credentials", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		resp, err := http.Post(srv.URL+"/v1/query", "application/json", bytes.NewBufferString(`{"query":"x"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should reject an empty query", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		body := bytes.NewBufferString(`{"query":"   "}`)
		var errResp map[string]string
		status := doJSON(t, authedRequest(t, http.MethodPost, srv.URL+"/v1/query", body), &errResp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "query is required", errResp["error"])
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		body := bytes.NewBufferString(`{not json`)
		var errResp map[string]string
		status := doJSON(t, authedRequest(t, http.MethodPost, srv.URL+"/v1/query", body), &errResp)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid request body", errResp["error"])
	})

	t.Run("should reject non-POST methods", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		status := doJSON(t, authedRequest(t, http.MethodGet, srv.URL+"/v1/query", nil), nil)
		assert.Equal(t, http.StatusMethodNotAllowed, status)
	})

	t.Run("should map an invalid session key to a client error", func(t *testing.T) {
		svc := &fakeService{err: fmt.Errorf("session: %w", session.ErrInvalidKey)}
		_, srv := newTestServer(t, svc)

		body := bytes.NewBufferString(`{"session_key":"../x","query":"hello"}`)
		status := doJSON(t, authedRequest(t, http.MethodPost, srv.URL+"/v1/query", body), nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("should surface engine failures as server errors", func(t *testing.T) {
		svc := &fakeService{err: fmt.Errorf("graph exceeded 250 steps without reaching END")}
		_, srv := newTestServer(t, svc)

		body := bytes.NewBufferString(`{"query":"hello"}`)
		var errResp map[string]string
		status := doJSON(t, authedRequest(t, http.MethodPost, srv.URL+"/v1/query", body), &errResp)

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Contains(t, errResp["error"], "graph exceeded")
	})
}

func TestHandleHistory(t *testing.T) {
	t.Run("should return session entries", func(t *testing.T) {
		svc := &fakeService{entries: []session.ConversationEntry{
			{Timestamp: "10:00:00", Query: "q1", Response: "a1", Route: "general"},
			{Timestamp: "10:01:00", Query: "q2", Response: "a2", Route: "research"},
		}}
		_, srv := newTestServer(t, svc)

		var resp HistoryResponse
		status := doJSON(t, authedRequest(t, http.MethodGet, srv.URL+"/v1/history?session_key=alpha", nil), &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "alpha", resp.SessionKey)
		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Entries, 2)
		assert.Equal(t, "q1", resp.Entries[0].Query)
	})

	t.Run("should default the session key", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		var resp HistoryResponse
		status := doJSON(t, authedRequest(t, http.MethodGet, srv.URL+"/v1/history", nil), &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, orchestrator.DefaultSessionKey, resp.SessionKey)
		assert.Zero(t, resp.Count)
	})

	t.Run("should clear a session", func(t *testing.T) {
		svc := &fakeService{}
		_, srv := newTestServer(t, svc)

		var resp map[string]string
		status := doJSON(t, authedRequest(t, http.MethodDelete, srv.URL+"/v1/history?session_key=alpha", nil), &resp)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", resp["status"])
		assert.Equal(t, []string{"alpha"}, svc.cleared)
	})

	t.Run("should reject other methods", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		status := doJSON(t, authedRequest(t, http.MethodPost, srv.URL+"/v1/history", nil), nil)
		assert.Equal(t, http.StatusMethodNotAllowed, status)
	})
}

func TestOpenEndpoints(t *testing.T) {
	t.Run("should serve health without auth", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"ok"}`, string(body))
	})

	t.Run("should serve metrics without auth", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestWebSocket(t *testing.T) {
	dial := func(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
		t.Helper()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		if token != "" {
			wsURL += "?access_token=" + token
		}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	t.Run("should reject unauthenticated connections", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should stream events and then the result", func(t *testing.T) {
		svc := &fakeService{result: &orchestrator.Result{
			Query:  "hello",
			Route:  "general",
			Answer: "hi there",
		}}
		s, err := NewServer(Config{
			Port:         1,
			SharedSecret: "s3cret",
			Service:      svc,
			Logger:       zerolog.Nop(),
		})
		require.NoError(t, err)
		svc.emit = func() {
			s.broadcaster.Notify(orchestrator.Event{Type: orchestrator.EventRouteDecided, Route: "general"})
		}

		srv := httptest.NewServer(s.routes())
		t.Cleanup(srv.Close)

		conn := dial(t, srv, "s3cret")
		require.NoError(t, conn.WriteJSON(QueryRequest{Type: "query", SessionKey: "ws-session", Query: "hello"}))

		event := readFrame(t, conn)
		assert.Equal(t, "event", event.Type)
		assert.Equal(t, "route", event.Event)

		result := readFrame(t, conn)
		assert.Equal(t, "result", result.Type)
		assert.Greater(t, result.Seq, event.Seq)

		data, ok := result.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "hi there", data["answer"])

		recorded := svc.lastQuery(t)
		assert.Equal(t, "ws-session", recorded.sessionKey)
		assert.Equal(t, "hello", recorded.query)
	})

	t.Run("should reject an empty streamed query", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		conn := dial(t, srv, "s3cret")
		require.NoError(t, conn.WriteJSON(QueryRequest{Type: "query", Query: "  "}))

		frame := readFrame(t, conn)
		assert.Equal(t, "error", frame.Type)
		assert.Equal(t, "query is required", frame.Error)
	})

	t.Run("should reject unknown frame types", func(t *testing.T) {
		_, srv := newTestServer(t, &fakeService{})

		conn := dial(t, srv, "s3cret")
		require.NoError(t, conn.WriteJSON(QueryRequest{Type: "subscribe"}))

		frame := readFrame(t, conn)
		assert.Equal(t, "error", frame.Type)
		assert.Contains(t, frame.Error, `unknown message type: "subscribe"`)
	})

	t.Run("should surface a failed streamed query as an error frame", func(t *testing.T) {
		svc := &fakeService{err: fmt.Errorf("generation timed out")}
		_, srv := newTestServer(t, svc)

		conn := dial(t, srv, "s3cret")
		require.NoError(t, conn.WriteJSON(QueryRequest{Type: "query", Query: "hello"}))

		frame := readFrame(t, conn)
		assert.Equal(t, "error", frame.Type)
		assert.Contains(t, frame.Error, "generation timed out")
	})
}

func TestStop(t *testing.T) {
	t.Run("should close client connections", func(t *testing.T) {
		svc := &fakeService{}
		s, err := NewServer(Config{
			Port:         1,
			SharedSecret: "s3cret",
			Service:      svc,
			Logger:       zerolog.Nop(),
		})
		require.NoError(t, err)

		srv := httptest.NewServer(s.routes())
		t.Cleanup(srv.Close)

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?access_token=s3cret"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })

		require.Eventually(t, func() bool {
			return s.broadcaster.clients.Count() == 1
		}, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, s.Stop())

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		for {
			var frame StreamMessage
			if err := conn.ReadJSON(&frame); err != nil {
				break
			}
			assert.Equal(t, "server.shutdown", frame.Event)
		}
	})
}
