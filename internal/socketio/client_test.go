package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks just enough Engine.IO/Socket.IO to drive the client.
type fakeServer struct {
	t          *testing.T
	srv        *httptest.Server
	refuse     string
	headers    chan http.Header
	conns      chan *websocket.Conn
	upgrader   websocket.Upgrader
	pingFirstN int
}

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{
		t:        t,
		headers:  make(chan http.Header, 1),
		conns:    make(chan *websocket.Conn, 1),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "bad endpoint", http.StatusBadRequest)
		return
	}
	fs.headers <- r.Header.Clone()
	ws, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"eio-1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))
	_, msg, err := ws.ReadMessage()
	if err != nil || !strings.HasPrefix(string(msg), "40") {
		ws.Close()
		return
	}
	if fs.refuse != "" {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`44{"message":"`+fs.refuse+`"}`))
		ws.Close()
		return
	}
	for i := 0; i < fs.pingFirstN; i++ {
		_ = ws.WriteMessage(websocket.TextMessage, []byte("2"))
		if _, msg, err := ws.ReadMessage(); err != nil || string(msg) != "3" {
			ws.Close()
			return
		}
	}
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"sock-1"}`))
	fs.conns <- ws
}

func (fs *fakeServer) accept() *websocket.Conn {
	fs.t.Helper()
	select {
	case ws := <-fs.conns:
		fs.t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(5 * time.Second):
		fs.t.Fatal("no client connected")
		return nil
	}
}

func readText(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

type recorder struct {
	mu     sync.Mutex
	events []string
	data   []string
	ch     chan string
}

func newRecorder() *recorder { return &recorder{ch: make(chan string, 16)} }

func (r *recorder) handler(name string) Handler {
	return func(data json.RawMessage) {
		r.mu.Lock()
		r.events = append(r.events, name)
		r.data = append(r.data, string(data))
		r.mu.Unlock()
		r.ch <- name
	}
}

func (r *recorder) await(t *testing.T, name string) {
	t.Helper()
	for {
		select {
		case got := <-r.ch:
			if got == name {
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("event %q not delivered", name)
		}
	}
}

func newClient(fs *fakeServer, rec *recorder) *Client {
	c := &Client{
		URL:     fs.srv.URL,
		Header:  http.Header{"Machine-Key": []string{"key-1"}},
		Timeout: 2 * time.Second,
	}
	for _, ev := range []string{EventConnect, EventDisconnect, "perform_action", "request_screenshot"} {
		c.On(ev, rec.handler(ev))
	}
	return c
}

func TestClientEventsRoundTrip(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c := newClient(fs, rec)

	require.NoError(t, c.Connect(context.Background()))
	ws := fs.accept()
	assert.Equal(t, "key-1", (<-fs.headers).Get("Machine-Key"))
	assert.Equal(t, "sock-1", c.SID())
	rec.await(t, EventConnect)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`42["perform_action",{"command":"click(1,2)"}]`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`42["request_screenshot"]`)))
	rec.await(t, "request_screenshot")

	require.NoError(t, c.Emit("screenshot_data", map[string]string{"machineKey": "key-1"}))
	assert.Equal(t, `42["screenshot_data",{"machineKey":"key-1"}]`, readText(t, ws))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("2")))
	assert.Equal(t, "3", readText(t, ws))

	require.NoError(t, c.Disconnect())
	assert.Equal(t, "41", readText(t, ws))
	assert.NoError(t, c.Wait())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{EventConnect, "perform_action", "request_screenshot", EventDisconnect}, rec.events)
	assert.JSONEq(t, `{"command":"click(1,2)"}`, rec.data[1])
	assert.Equal(t, "", rec.data[2])
}

func TestClientServerDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c := newClient(fs, rec)
	require.NoError(t, c.Connect(context.Background()))
	ws := fs.accept()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("41")))
	rec.await(t, EventDisconnect)
	assert.True(t, errors.Is(c.Wait(), ErrServerDisconnect))
	assert.Error(t, c.Emit("x", nil))
}

func TestClientAnswersPingDuringHandshake(t *testing.T) {
	fs := newFakeServer(t)
	fs.pingFirstN = 2
	c := newClient(fs, newRecorder())
	require.NoError(t, c.Connect(context.Background()))
	fs.accept()
	require.NoError(t, c.Disconnect())
}

func TestClientConnectRefused(t *testing.T) {
	fs := newFakeServer(t)
	fs.refuse = "invalid machine key"
	c := newClient(fs, newRecorder())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid machine key")
	assert.ErrorIs(t, c.Wait(), ErrNotConnected)
}

func TestClientDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := &Client{URL: srv.URL, Timeout: 300 * time.Millisecond}
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socketio: connect")
	assert.ErrorIs(t, c.Wait(), ErrNotConnected)
}

func TestClientConnectCancelled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Client{URL: srv.URL, Timeout: 5 * time.Second}
	assert.ErrorIs(t, c.Connect(ctx), context.Canceled)
}

func TestClientHandlerPanicDoesNotStopDispatch(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c := newClient(fs, rec)
	c.On("perform_action", func(json.RawMessage) { panic("boom") })
	require.NoError(t, c.Connect(context.Background()))
	ws := fs.accept()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`42["perform_action",{}]`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`42["request_screenshot"]`)))
	rec.await(t, "request_screenshot")
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Wait())
}

func TestEmitBeforeConnect(t *testing.T) {
	c := &Client{}
	assert.ErrorIs(t, c.Emit("x", nil), ErrNotConnected)
	assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)
}

func TestQueueKeepsOrderAndDrainsAfterClose(t *testing.T) {
	q := newQueue()
	q.push(inbound{name: "a"})
	q.push(inbound{name: "b"})
	q.close()
	q.push(inbound{name: "late"})

	var got []string
	for {
		ev, ok := q.next()
		if !ok {
			break
		}
		got = append(got, ev.name)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQueueNextBlocksUntilPush(t *testing.T) {
	q := newQueue()
	got := make(chan string, 1)
	go func() {
		ev, _ := q.next()
		got <- ev.name
	}()
	select {
	case <-got:
		t.Fatal("next returned on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}
	q.push(inbound{name: "x"})
	select {
	case name := <-got:
		assert.Equal(t, "x", name)
	case <-time.After(time.Second):
		t.Fatal("next did not wake up")
	}
}

func TestDecodeEventArguments(t *testing.T) {
	c := &Client{}
	ev, ok := c.decode([]any{"perform_action", map[string]any{"command": "move(1,2)"}})
	require.True(t, ok)
	assert.Equal(t, "perform_action", ev.name)
	assert.JSONEq(t, `{"command":"move(1,2)"}`, string(ev.data))

	ev, ok = c.decode([]any{"request_screenshot", func([]any, error) {}})
	require.True(t, ok)
	assert.Nil(t, ev.data)

	_, ok = c.decode([]any{42})
	assert.False(t, ok)
	_, ok = c.decode(nil)
	assert.False(t, ok)
}

func TestDisconnectError(t *testing.T) {
	c := &Client{}
	assert.NoError(t, c.disconnectError(reasonClientDisconnect, nil))
	assert.ErrorIs(t, c.disconnectError(reasonServerDisconnect, nil), ErrServerDisconnect)
	cause := errors.New("eof")
	assert.ErrorIs(t, c.disconnectError("transport close", cause), cause)
	assert.EqualError(t, c.disconnectError("ping timeout", nil), "socketio: ping timeout")

	c.closing.Store(true)
	assert.NoError(t, c.disconnectError(reasonServerDisconnect, nil))
}
