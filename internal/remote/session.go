// Package remote drives a Leaflet page over a websocket: the page executes map
// and marker commands and reports readiness and marker clicks back.
package remote

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"

	"trasima-livemap/internal/engine"
	"trasima-livemap/internal/mapview"
)

const writeWait = 10 * time.Second

var errClosed = errors.New("session closed")

// command is one outbound frame. Unused fields are omitted.
type command struct {
	Op      string             `json:"op"`
	Marker  uint64             `json:"marker,omitempty"`
	Center  *mapview.LatLng    `json:"center,omitempty"`
	Zoom    *int               `json:"zoom,omitempty"`
	Pos     *mapview.LatLng    `json:"pos,omitempty"`
	Icon    *mapview.IconSpec  `json:"icon,omitempty"`
	Popup   string             `json:"popup,omitempty"`
	Tiles   *mapview.TileLayer `json:"tiles,omitempty"`
	Bounds  *[2][2]float64     `json:"bounds,omitempty"` // [[south, west], [north, east]]
	Padding *[2]int            `json:"padding,omitempty"`
	Status  *engine.Status     `json:"status,omitempty"`
	Details *mapview.Details   `json:"details,omitempty"`
}

type inbound struct {
	Op     string `json:"op"`
	Marker uint64 `json:"marker"`
}

// Session is one connected map page.
type Session struct {
	ID   uuid.UUID
	conn *websocket.Conn
	logf func(string, ...any)

	wmu        sync.Mutex
	ready      atomic.Bool
	nextMarker atomic.Uint64

	mu     sync.Mutex
	clicks map[uint64]func()

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(conn *websocket.Conn, logf func(string, ...any)) *Session {
	if logf == nil {
		logf = log.Printf
	}
	id := uuid.New()
	prefix := "session " + id.String()[:8] + ": "
	return &Session{
		ID:     id,
		conn:   conn,
		logf:   func(format string, args ...any) { logf(prefix+format, args...) },
		clicks: make(map[uint64]func()),
		done:   make(chan struct{}),
	}
}

// Logf logs with the session prefix.
func (s *Session) Logf(format string, args ...any) { s.logf(format, args...) }

// Done is closed once the socket is gone.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// ReadLoop handles inbound frames until the socket fails or closes.
func (s *Session) ReadLoop() error {
	defer s.Close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.logf("bad frame: %v", err)
			continue
		}
		switch in.Op {
		case "ready":
			s.ready.Store(true)
		case "click":
			s.mu.Lock()
			fn := s.clicks[in.Marker]
			s.mu.Unlock()
			if fn != nil {
				fn()
			}
		default:
			s.logf("unknown op %q", in.Op)
		}
	}
}

func (s *Session) send(cmd command) error {
	select {
	case <-s.done:
		return errClosed
	default:
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(cmd); err != nil {
		s.logf("write %s: %v", cmd.Op, err)
		s.Close()
		return err
	}
	return nil
}

// Ready reports the page as a renderer once it announced Leaflet is loaded.
func (s *Session) Ready() (mapview.Renderer, bool) {
	if !s.ready.Load() {
		return nil, false
	}
	return s, true
}

func (s *Session) NewMap(center mapview.LatLng, zoom int) (mapview.Map, error) {
	if err := s.send(command{Op: "map.create", Center: &center, Zoom: &zoom}); err != nil {
		return nil, err
	}
	return &remoteMap{s: s}, nil
}

func (s *Session) StatusChanged(st engine.Status) {
	_ = s.send(command{Op: "status", Status: &st})
}

func (s *Session) SelectionChanged(d *mapview.Details) {
	_ = s.send(command{Op: "details", Details: d})
}

type remoteMap struct {
	s *Session
}

func (m *remoteMap) AddTileLayer(layer mapview.TileLayer) {
	_ = m.s.send(command{Op: "tiles.add", Tiles: &layer})
}

func (m *remoteMap) AddMarker(pos mapview.LatLng, look mapview.Appearance, onClick func()) mapview.Marker {
	h := m.s.nextMarker.Add(1)
	if onClick != nil {
		m.s.mu.Lock()
		m.s.clicks[h] = onClick
		m.s.mu.Unlock()
	}
	_ = m.s.send(command{Op: "marker.add", Marker: h, Pos: &pos, Icon: &look.Icon, Popup: look.PopupHTML})
	return &remoteMarker{s: m.s, handle: h}
}

func (m *remoteMap) FitBounds(b orb.Bound, padding [2]int) {
	bounds := [2][2]float64{{b.Min.Lat(), b.Min.Lon()}, {b.Max.Lat(), b.Max.Lon()}}
	_ = m.s.send(command{Op: "map.fit", Bounds: &bounds, Padding: &padding})
}

func (m *remoteMap) Remove() {
	_ = m.s.send(command{Op: "map.remove"})
}

type remoteMarker struct {
	s      *Session
	handle uint64
}

func (mk *remoteMarker) SetLatLng(pos mapview.LatLng) {
	_ = mk.s.send(command{Op: "marker.move", Marker: mk.handle, Pos: &pos})
}

func (mk *remoteMarker) SetIcon(icon mapview.IconSpec) {
	_ = mk.s.send(command{Op: "marker.icon", Marker: mk.handle, Icon: &icon})
}

func (mk *remoteMarker) SetPopupContent(html string) {
	_ = mk.s.send(command{Op: "marker.popup", Marker: mk.handle, Popup: html})
}

func (mk *remoteMarker) Remove() {
	mk.s.mu.Lock()
	delete(mk.s.clicks, mk.handle)
	mk.s.mu.Unlock()
	_ = mk.s.send(command{Op: "marker.remove", Marker: mk.handle})
}
