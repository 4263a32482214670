package replica

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quicklabel/internal/model"
	"quicklabel/internal/ws"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// fakeServer answers every inbound message with a state_update carrying
// one image, which is enough to observe the sync handshake.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			env, _ := ws.NewEnvelope(ws.TypeStateUpdate, model.SessionState{
				Classes: []string{"cat"},
				Images:  []model.Image{{ID: "a.jpg", Filename: "a.jpg"}},
			})
			data, _ := env.Encode()
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(httpURL string) string {
	return strings.Replace(httpURL, "http", "ws", 1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnSyncsOnConnect(t *testing.T) {
	ts := fakeServer(t)
	rep := New()
	conn := NewConn(ConnConfig{URL: wsURL(ts.URL), Log: quietLogger()}, rep)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(rep.State().Images) == 1 && !rep.Degraded() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("mirror never synced: %+v", rep.State())
}

func TestConnDegradesWhenServerGone(t *testing.T) {
	rep := New()
	conn := NewConn(ConnConfig{URL: "ws://127.0.0.1:1/ws", Log: quietLogger()}, rep)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rep.Degraded() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !rep.Degraded() {
		t.Fatalf("replica never degraded")
	}

	// Sends fail fast instead of queueing into the void.
	err := conn.Send(ws.TypeUndo, nil)
	if err == nil {
		t.Fatalf("Send succeeded while degraded")
	}
	var ce ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %T %v, want ConnectionError", err, err)
	}
}

// reconnectServer serves the ws endpoint on a caller-owned listener so a
// test can tear it down and bring a replacement up on the same address.
// Closing it also closes the hijacked websocket conns, which the http
// server no longer tracks.
type reconnectServer struct {
	srv   *http.Server
	mu    sync.Mutex
	conns []*websocket.Conn
}

func startReconnectServer(t *testing.T, ln net.Listener, imageID string) *reconnectServer {
	t.Helper()
	rs := &reconnectServer{}
	rs.srv = &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		rs.mu.Lock()
		rs.conns = append(rs.conns, conn)
		rs.mu.Unlock()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			env, _ := ws.NewEnvelope(ws.TypeStateUpdate, model.SessionState{
				Classes: []string{"cat"},
				Images:  []model.Image{{ID: imageID, Filename: imageID}},
			})
			data, _ := env.Encode()
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	})}
	go rs.srv.Serve(ln)
	t.Cleanup(rs.stop)
	return rs
}

func (rs *reconnectServer) stop() {
	rs.srv.Close()
	rs.mu.Lock()
	for _, c := range rs.conns {
		c.Close()
	}
	rs.conns = nil
	rs.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func relisten(t *testing.T, addr string) net.Listener {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln
		}
		if time.Now().After(deadline) {
			t.Fatalf("relisten %s: %v", addr, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestConnReconnectsWithFullSync(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	first := startReconnectServer(t, ln, "before.jpg")

	rep := New()
	conn := NewConn(ConnConfig{
		URL:       "ws://" + addr + "/ws",
		Policy:    ReconnectPolicy{InitialDelay: 20 * time.Millisecond, Multiplier: 2, MaxDelay: 200 * time.Millisecond},
		Heartbeat: 25 * time.Millisecond,
		Log:       quietLogger(),
	}, rep)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	waitFor(t, func() bool {
		st := rep.State()
		return !rep.Degraded() && len(st.Images) == 1 && st.Images[0].ID == "before.jpg"
	}, "initial sync")

	first.stop()
	waitFor(t, rep.Degraded, "degradation after server loss")

	// A replacement server on the same address holds different state; the
	// replica must come back non-degraded mirroring it.
	startReconnectServer(t, relisten(t, addr), "after.jpg")

	waitFor(t, func() bool {
		st := rep.State()
		return !rep.Degraded() && len(st.Images) == 1 && st.Images[0].ID == "after.jpg"
	}, "resync after reconnect")
}
