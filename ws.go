package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trasima-livemap/internal/engine"
	"trasima-livemap/internal/feed"
	"trasima-livemap/internal/remote"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sessionHub runs one engine per connected map page.
type sessionHub struct {
	ctx    context.Context
	cfg    AppConfig
	source feed.Source

	mu       sync.Mutex
	sessions map[*remote.Session]*engine.Engine
	closed   bool
	wg       sync.WaitGroup
}

func newSessionHub(ctx context.Context, cfg AppConfig, source feed.Source) *sessionHub {
	return &sessionHub{
		ctx:      ctx,
		cfg:      cfg,
		source:   source,
		sessions: make(map[*remote.Session]*engine.Engine),
	}
}

func (h *sessionHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.closing() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	s := remote.NewSession(conn, log.Printf)
	opts := h.cfg.engineOptions(h.source)
	opts.Loader = s
	opts.Observer = s
	opts.Logf = s.Logf
	eng := engine.New(opts)

	ctx, cancel := context.WithCancel(h.ctx)
	if !h.add(s, eng) {
		cancel()
		s.Close()
		return
	}
	s.Logf("connected from %s", r.RemoteAddr)

	go func() {
		defer h.wg.Done()
		defer cancel()
		if err := s.ReadLoop(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			s.Logf("read: %v", err)
		}
	}()
	go func() {
		defer h.wg.Done()
		defer h.remove(s)
		defer s.Close()
		if err := eng.Run(ctx); err != nil {
			s.Logf("engine: %v", err)
		}
		s.Logf("disconnected")
	}()
}

// add registers a session and its two goroutines. It refuses once the hub is
// shutting down so that wait never races a late upgrade.
func (h *sessionHub) add(s *remote.Session, e *engine.Engine) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.ctx.Err() != nil {
		return false
	}
	h.sessions[s] = e
	h.wg.Add(2)
	return true
}

func (h *sessionHub) closing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed || h.ctx.Err() != nil
}

func (h *sessionHub) remove(s *remote.Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

func (h *sessionHub) engines() []*engine.Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*engine.Engine, 0, len(h.sessions))
	for _, e := range h.sessions {
		out = append(out, e)
	}
	return out
}

// wait stops accepting sessions and blocks until every session has torn down.
func (h *sessionHub) wait() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.wg.Wait()
}

type health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Markers  int    `json:"markers"`
}

func (h *sessionHub) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	out := health{Status: "ok"}
	for _, e := range h.engines() {
		ids, err := e.Markers(ctx)
		if err != nil {
			continue
		}
		out.Sessions++
		out.Markers += len(ids)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
