package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trasima-livemap/internal/feed"
)

const twoVehicles = `[{"id":1,"lat":48.1,"lon":9.1,"speed":10,"direction":90},{"id":2,"lat":48.2,"lon":9.3,"speed":4,"direction":180}]`

type testServer struct {
	srv      *httptest.Server
	hub      *sessionHub
	upstream *httptest.Server
	lastFwd  chan string
	cancel   context.CancelFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{lastFwd: make(chan string, 64)}
	ts.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != feed.VehiclesPath {
			http.NotFound(w, r)
			return
		}
		select {
		case ts.lastFwd <- r.Header.Get("X-Forwarded-For"):
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, twoVehicles)
	}))
	t.Cleanup(ts.upstream.Close)

	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<title>livemap</title>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Upstream.APIBase = ts.upstream.URL
	cfg.Server.StaticDir = static
	cfg.Map.ReadyPollMS = 1
	cfg.Poll.IntervalMS = 50
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	src, err := feed.New(cfg.feedConfig())
	if err != nil {
		t.Fatalf("feed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts.cancel = cancel
	ts.hub = newSessionHub(ctx, cfg, src)
	handler, err := newRouter(cfg, ts.hub)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	ts.srv = httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		ts.hub.wait()
		ts.srv.Close()
	})
	return ts
}

func (ts *testServer) health(t *testing.T) health {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	var h health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	return h
}

func TestProxyForwardsAPI(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + feed.VehiclesPath)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != twoVehicles {
		t.Fatalf("proxied %d %s", resp.StatusCode, body)
	}
	if fwd := <-ts.lastFwd; fwd == "" {
		t.Error("X-Forwarded-For not set")
	}

	resp, err = http.Get(ts.srv.URL + "/api/unknown")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown upstream path: %d", resp.StatusCode)
	}
}

func TestProxyUpstreamDown(t *testing.T) {
	h, err := newAPIProxy("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("newAPIProxy: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, feed.VehiclesPath, nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if _, err := newAPIProxy("localhost:8080"); err == nil {
		t.Fatal("relative base accepted")
	}
}

func TestStaticAndHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "livemap") {
		t.Fatalf("index = %s", body)
	}

	if h := ts.health(t); h.Status != "ok" || h.Sessions != 0 {
		t.Fatalf("health = %+v", h)
	}
}

type frame struct {
	Op     string          `json:"op"`
	Marker uint64          `json:"marker"`
	Status json.RawMessage `json:"status"`
}

func TestLiveSessionRendersFeed(t *testing.T) {
	ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"op": "ready"}); err != nil {
		t.Fatalf("ready: %v", err)
	}

	seen := map[string]int{}
	markers := map[uint64]bool{}
	deadline := time.Now().Add(5 * time.Second)
	for seen["map.fit"] == 0 || len(markers) < 2 {
		_ = conn.SetReadDeadline(deadline)
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read after %v: %v", seen, err)
		}
		seen[f.Op]++
		if f.Op == "marker.add" {
			markers[f.Marker] = true
		}
	}
	if seen["map.create"] != 1 || seen["tiles.add"] != 1 {
		t.Fatalf("frames = %v", seen)
	}

	if h := ts.health(t); h.Sessions != 1 || h.Markers != 2 {
		t.Fatalf("health = %+v", h)
	}

	conn.Close()
	deadline = time.Now().Add(3 * time.Second)
	for ts.health(t).Sessions != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubRefusesSessionsAfterShutdown(t *testing.T) {
	ts := newTestServer(t)
	ts.cancel()
	ts.hub.wait()

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/live"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("upgrade accepted after shutdown")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("dial after shutdown: resp=%v err=%v", resp, err)
	}
	if h := ts.health(t); h.Sessions != 0 {
		t.Fatalf("health = %+v", h)
	}
}
