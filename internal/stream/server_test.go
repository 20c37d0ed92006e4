package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := New(opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func frame(cycle int64) model.Frame {
	return model.Frame{
		Session:    "sess-1",
		Cycle:      cycle,
		CapturedAt: testutil.Epoch,
		Hits: []model.HitEvent{{
			Victim: model.SlotP1C1, Attacker: model.SlotP2C1, Delta: 1200,
			ValueBefore: 50000, ValueAfter: 48800, Cycle: cycle, DistanceSquared: 25,
		}},
	}
}

func TestServer_BroadcastsFrames(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)

	require.Eventually(t, func() bool { return s.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Consume(context.Background(), frame(7)))

	got := readFrame(t, conn)
	assert.Equal(t, float64(7), got["cycle"])
	assert.Equal(t, "sess-1", got["session"])
	hits, ok := got["hits"].([]any)
	require.True(t, ok)
	assert.Len(t, hits, 1)
}

func TestServer_NewClientGetsLatestFrame(t *testing.T) {
	s, ts := newTestServer(t)
	require.NoError(t, s.Consume(context.Background(), frame(3)))
	require.NoError(t, s.Consume(context.Background(), frame(4)))

	conn := dial(t, ts)
	got := readFrame(t, conn)
	assert.Equal(t, float64(4), got["cycle"])
}

func TestServer_Snapshot(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, s.Consume(context.Background(), frame(12)))

	resp, err = http.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var f map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	assert.Equal(t, float64(12), f["cycle"])
}

func TestServer_Healthz(t *testing.T) {
	s, ts := newTestServer(t)
	require.NoError(t, s.Consume(context.Background(), frame(9)))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, Health{Status: "ok", Clients: 0, Cycle: 9, Frames: 1}, h)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/snapshot", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_ClientDisconnectIsUnregistered(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)
	require.Eventually(t, func() bool { return s.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	require.Eventually(t, func() bool { return s.Hub().Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := newHub(slog.Default(), 2)
	c := &client{send: make(chan []byte, 2)}
	h.clients[c] = struct{}{}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Broadcast([]byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full client queue")
	}
	assert.Len(t, c.send, 2)
	assert.Equal(t, int64(3), c.dropped.Load())
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	s := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
