package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.NewClient(conn, r.URL.Query().Get("user"))
		if !hub.Register(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		client.ReadPump()
	}))

	stop := func() {
		cancel()
		<-hub.done
		srv.Close()
	}
	return hub, srv, stop
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestSendToUser(t *testing.T) {
	hub, srv, stop := startHub(t)
	defer stop()

	alice := dial(t, srv, "alice")
	defer alice.Close()
	bob := dial(t, srv, "bob")
	defer bob.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount("alice") == 1 && hub.ClientCount("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, hub.SendToUser("alice", Event{Type: EventFeedbackReady, InterviewID: "iv-1"}))

	ev := readEvent(t, alice)
	assert.Equal(t, EventFeedbackReady, ev.Type)
	assert.Equal(t, "iv-1", ev.InterviewID)
	assert.False(t, ev.Timestamp.IsZero())

	// bob receives nothing for alice's interview
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err)
}

func TestPingPong(t *testing.T) {
	hub, srv, stop := startHub(t)
	defer stop()

	conn := dial(t, srv, "carol")
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("carol") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	assert.Equal(t, EventPong, readEvent(t, conn).Type)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv, stop := startHub(t)
	defer stop()

	first := dial(t, srv, "dave")
	second := dial(t, srv, "dave")
	defer second.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("dave") == 2 }, 2*time.Second, 10*time.Millisecond)

	first.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("dave") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.SendToUser("dave", Event{Type: EventFeedbackFailed, InterviewID: "iv-2", Error: "model unavailable"})
	ev := readEvent(t, second)
	assert.Equal(t, EventFeedbackFailed, ev.Type)
	assert.Equal(t, "model unavailable", ev.Error)
}

func TestRegisterAfterStop(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	c := &Client{ID: "x", Hub: hub, Send: make(chan []byte, 1), UserID: "erin"}
	assert.False(t, hub.Register(c))
	hub.Unregister(c)
	assert.Zero(t, hub.ClientCount("erin"))
}
