package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aksel/sage/pkg/orchestrator"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}

func readFrame(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()

	var msg StreamMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestBroadcasterNotify(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	b := NewBroadcaster(zerolog.Nop())
	b.clients.Add(&Client{ID: "client-1", Conn: serverConn})

	b.Notify(orchestrator.Event{
		Type:      orchestrator.EventRouteDecided,
		QueryID:   "q-1",
		Route:     "research",
		Reasoning: "needs sources",
	})
	b.Notify(orchestrator.Event{
		Type: orchestrator.EventStepExecuted,
		Step: &orchestrator.Step{Tool: "arxiv", Input: "topic", Output: "papers"},
	})
	b.Notify(orchestrator.Event{
		Type:   orchestrator.EventAnswerReady,
		Answer: "done",
	})

	first := readFrame(t, clientConn)
	assert.Equal(t, "event", first.Type)
	assert.Equal(t, "route", first.Event)
	assert.NotZero(t, first.Seq)
	assert.NotZero(t, first.Timestamp)

	data, ok := first.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "research", data["route"])
	assert.Equal(t, "q-1", data["query_id"])

	second := readFrame(t, clientConn)
	assert.Equal(t, "step", second.Event)
	assert.Greater(t, second.Seq, first.Seq)

	third := readFrame(t, clientConn)
	assert.Equal(t, "final", third.Event)
	assert.Greater(t, third.Seq, second.Seq)
}

func TestBroadcasterBroadcast(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	b := NewBroadcaster(zerolog.Nop())
	b.clients.Add(&Client{ID: "client-1", Conn: serverConn})

	b.Broadcast("server.shutdown", map[string]interface{}{"message": "bye"})

	frame := readFrame(t, clientConn)
	assert.Equal(t, "event", frame.Type)
	assert.Equal(t, "server.shutdown", frame.Event)
	assert.NotZero(t, frame.Seq)
	assert.NotZero(t, frame.Timestamp)
}

func TestBroadcasterSendTo(t *testing.T) {
	serverConn1, clientConn1, cleanup1 := websocketConnPair(t)
	defer cleanup1()
	serverConn2, clientConn2, cleanup2 := websocketConnPair(t)
	defer cleanup2()

	b := NewBroadcaster(zerolog.Nop())
	target := &Client{ID: "client-1", Conn: serverConn1}
	b.clients.Add(target)
	b.clients.Add(&Client{ID: "client-2", Conn: serverConn2})

	require.NoError(t, b.SendTo(target, StreamMessage{Type: frameResult, Data: map[string]interface{}{"answer": "42"}}))

	frame := readFrame(t, clientConn1)
	assert.Equal(t, "result", frame.Type)
	assert.NotZero(t, frame.Seq)

	require.NoError(t, clientConn2.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var stray StreamMessage
	assert.Error(t, clientConn2.ReadJSON(&stray))
}

func TestBroadcasterWithoutClients(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())

	// Must not panic or block when nobody is connected.
	b.Notify(orchestrator.Event{Type: orchestrator.EventAnswerReady, Answer: "x"})
	b.Broadcast("tick", nil)
}
