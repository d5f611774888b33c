package remote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"

	"trasima-livemap/internal/engine"
	"trasima-livemap/internal/mapview"
	"trasima-livemap/internal/vehicle"
)

func quiet(string, ...any) {}

// dial starts a websocket endpoint backed by a Session and connects a client to it.
func dial(t *testing.T) (*Session, *websocket.Conn) {
	t.Helper()
	sessions := make(chan *Session, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := NewSession(conn, quiet)
		sessions <- s
		_ = s.ReadLoop()
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case s := <-sessions:
		return s, client
	case <-time.After(2 * time.Second):
		t.Fatal("no session")
		return nil, nil
	}
}

func readCommand(t *testing.T, c *websocket.Conn) command {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var cmd command
	if err := c.ReadJSON(&cmd); err != nil {
		t.Fatalf("read command: %v", err)
	}
	return cmd
}

func send(t *testing.T, c *websocket.Conn, in inbound) {
	t.Helper()
	if err := c.WriteJSON(in); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitReady(t *testing.T, s *Session) mapview.Renderer {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := s.Ready(); ok {
			return r
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("session never became ready")
	return nil
}

func TestSessionDrivesPage(t *testing.T) {
	t.Parallel()

	s, client := dial(t)
	if _, ok := s.Ready(); ok {
		t.Fatal("ready before the page said so")
	}
	send(t, client, inbound{Op: "ready"})
	r := waitReady(t, s)

	m, err := r.NewMap(mapview.LatLng{Lat: 48, Lon: 9}, 12)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	if cmd := readCommand(t, client); cmd.Op != "map.create" || cmd.Center.Lat != 48 || cmd.Zoom == nil || *cmd.Zoom != 12 {
		t.Fatalf("map.create = %+v", cmd)
	}

	clicked := make(chan struct{}, 4)
	look := mapview.Render(vehicle.State{ID: 5, Lat: 48.1, Lon: 9.1, Direction: 30})
	mk := m.AddMarker(mapview.LatLng{Lat: 48.1, Lon: 9.1}, look, func() { clicked <- struct{}{} })
	add := readCommand(t, client)
	if add.Op != "marker.add" || add.Marker == 0 || add.Icon.RotationDeg != 30 || !strings.Contains(add.Popup, "Vehicle #5") {
		t.Fatalf("marker.add = %+v", add)
	}

	send(t, client, inbound{Op: "click", Marker: add.Marker})
	select {
	case <-clicked:
	case <-time.After(2 * time.Second):
		t.Fatal("click not routed to the marker handler")
	}

	mk.SetLatLng(mapview.LatLng{Lat: 48.2, Lon: 9.2})
	if cmd := readCommand(t, client); cmd.Op != "marker.move" || cmd.Marker != add.Marker || cmd.Pos.Lat != 48.2 {
		t.Fatalf("marker.move = %+v", cmd)
	}

	m.FitBounds(orb.Bound{Min: orb.Point{9.1, 48.1}, Max: orb.Point{9.3, 48.4}}, [2]int{24, 24})
	fit := readCommand(t, client)
	if fit.Op != "map.fit" || *fit.Bounds != [2][2]float64{{48.1, 9.1}, {48.4, 9.3}} || *fit.Padding != [2]int{24, 24} {
		t.Fatalf("map.fit = %+v", fit)
	}

	mk.Remove()
	if cmd := readCommand(t, client); cmd.Op != "marker.remove" || cmd.Marker != add.Marker {
		t.Fatalf("marker.remove = %+v", cmd)
	}
	send(t, client, inbound{Op: "click", Marker: add.Marker})
	send(t, client, inbound{Op: "ready"})
	time.Sleep(20 * time.Millisecond)
	select {
	case <-clicked:
		t.Fatal("click on a removed marker reached the handler")
	default:
	}
}

func TestSessionPublishesUIState(t *testing.T) {
	t.Parallel()

	s, client := dial(t)
	s.StatusChanged(engine.Status{Error: "boom", Count: 3})
	raw := readCommand(t, client)
	if raw.Op != "status" || raw.Status.Error != "boom" || raw.Status.Count != 3 {
		t.Fatalf("status = %+v", raw)
	}

	s.SelectionChanged(nil)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame["op"] != "details" {
		t.Fatalf("frame = %s", data)
	}
	if _, present := frame["details"]; present {
		t.Fatalf("cleared selection should omit details: %s", data)
	}
}

func TestSessionSendAfterClose(t *testing.T) {
	t.Parallel()

	s, _ := dial(t)
	s.Close()
	<-s.Done()
	if _, err := s.NewMap(mapview.LatLng{}, 1); err == nil {
		t.Fatal("NewMap succeeded on a closed session")
	}
}

func TestSessionSendsZeroZoom(t *testing.T) {
	t.Parallel()

	s, client := dial(t)
	send(t, client, inbound{Op: "ready"})
	r := waitReady(t, s)
	if _, err := r.NewMap(mapview.LatLng{Lat: 48, Lon: 9}, 0); err != nil {
		t.Fatalf("NewMap: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if string(frame["zoom"]) != "0" {
		t.Fatalf("map.create frame %s lacks zoom 0", data)
	}
}
