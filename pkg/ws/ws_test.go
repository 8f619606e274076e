package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/sem"
)

type stubConn struct {
	mu       sync.Mutex
	writes   [][]byte
	blockCh  chan struct{}
	closedCh chan struct{}
}

func newStubConn(blockWrites bool) *stubConn {
	blockCh := make(chan struct{})
	if !blockWrites {
		close(blockCh)
	}
	return &stubConn{blockCh: blockCh, closedCh: make(chan struct{})}
}

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-s.closedCh:
		return errors.New("closed")
	case <-s.blockCh:
	}
	s.mu.Lock()
	s.writes = append(s.writes, data)
	s.mu.Unlock()
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closedCh:
	default:
		close(s.closedCh)
	}
	return nil
}

func (s *stubConn) SetWriteDeadline(_ time.Time) error { return nil }

func (s *stubConn) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.writes))
	for _, w := range s.writes {
		out = append(out, string(w))
	}
	return out
}

func TestPool_DropsOnFullBuffer(t *testing.T) {
	pool := NewPool("s1")
	pool.sendBuffer = 1
	pool.writeTimeout = 0

	conn := newStubConn(true)
	pool.Add(conn)

	pool.Broadcast([]byte("one"))
	pool.Broadcast([]byte("two"))
	pool.Broadcast([]byte("three"))

	require.Eventually(t, func() bool {
		return pool.Count() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPool_BroadcastInOrder(t *testing.T) {
	pool := NewPool("s1")
	defer pool.CloseAll()
	a, b := newStubConn(false), newStubConn(false)
	pool.Add(a)
	pool.Add(b)
	require.Equal(t, 2, pool.Count())

	pool.Broadcast([]byte("one"))
	pool.SendToOne(a, []byte("only-a"))
	pool.Broadcast([]byte("two"))

	require.Eventually(t, func() bool { return len(a.written()) == 3 && len(b.written()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"one", "only-a", "two"}, a.written())
	require.Equal(t, []string{"one", "two"}, b.written())

	pool.Remove(b)
	require.Equal(t, 1, pool.Count())
}

func TestBroadcaster_AttachReplaysBacklog(t *testing.T) {
	pool := NewPool("s1")
	defer pool.CloseAll()
	b := NewBroadcaster(pool, sem.NewFrameBuffer(10))
	ctx := context.Background()

	require.NoError(t, b.Emit(ctx, effects.Typing{On: true}))
	require.NoError(t, b.Emit(ctx, effects.Typing{On: false}))

	conn := newStubConn(false)
	b.Attach(conn)
	require.NoError(t, b.Emit(ctx, effects.LoadEarlier{Visible: true}))

	require.Eventually(t, func() bool { return len(conn.written()) == 3 }, time.Second, 5*time.Millisecond)
	var types []effects.Type
	for _, f := range conn.written() {
		ev, err := sem.Decode([]byte(f))
		require.NoError(t, err)
		types = append(types, ev.Type)
	}
	require.Equal(t, []effects.Type{effects.TypeTyping, effects.TypeTyping, effects.TypeLoadEarlier}, types)

	b.Reset()
	late := newStubConn(false)
	b.Attach(late)
	require.NoError(t, b.Emit(ctx, effects.Initialized{}))
	require.Eventually(t, func() bool { return len(late.written()) == 1 }, time.Second, 5*time.Millisecond)
}

type fakeCommands struct {
	mu       sync.Mutex
	loads    int
	webviews []string
	err      error
}

func (f *fakeCommands) LoadEarlier(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.err
}

func (f *fakeCommands) HandleWebViewEvent(_ context.Context, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webviews = append(f.webviews, data)
	return f.err
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	cmds := &fakeCommands{}

	require.Nil(t, Dispatch(ctx, cmds, []byte(`{"type":"chat.load_earlier"}`)))
	require.Nil(t, Dispatch(ctx, cmds, []byte(`{"type":"webview.event","data":"complete"}`)))
	require.Nil(t, Dispatch(ctx, cmds, []byte(`{"type":"unknown"}`)))
	require.Nil(t, Dispatch(ctx, cmds, []byte(`{nope`)))
	require.Equal(t, 1, cmds.loads)
	require.Equal(t, []string{"complete"}, cmds.webviews)

	pong := Dispatch(ctx, cmds, []byte("ping"))
	ev, err := sem.Decode(pong)
	require.NoError(t, err)
	require.Equal(t, effects.Type("ws.pong"), ev.Type)

	cmds.err = errors.New("boom")
	reply := Dispatch(ctx, cmds, []byte(`{"type":"chat.load_earlier"}`))
	ev, err = sem.Decode(reply)
	require.NoError(t, err)
	require.Equal(t, effects.Type("ws.error"), ev.Type)
	require.Equal(t, "boom", ev.Data["error"])
}

func TestHandler_EndToEnd(t *testing.T) {
	pool := NewPool("s1")
	defer pool.CloseAll()
	b := NewBroadcaster(pool, sem.NewFrameBuffer(10))
	require.NoError(t, b.Emit(context.Background(), effects.Initialized{}))
	cmds := &fakeCommands{}

	srv := httptest.NewServer(NewHandler("s1", b, cmds, websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	read := func() sem.Event {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		ev, err := sem.Decode(data)
		require.NoError(t, err)
		return ev
	}
	require.Equal(t, effects.TypeInitialized, read().Type)
	require.Equal(t, effects.Type("ws.hello"), read().Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"webview.event","data":"close"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.Equal(t, effects.Type("ws.pong"), read().Type)

	cmds.mu.Lock()
	require.Equal(t, []string{"close"}, cmds.webviews)
	cmds.mu.Unlock()
}
