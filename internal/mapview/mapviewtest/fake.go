// Package mapviewtest provides an in-memory rendering surface for tests.
package mapviewtest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"

	"trasima-livemap/internal/mapview"
)

// Loader becomes ready after ReadyAfter calls to Ready; a negative value never does.
type Loader struct {
	ReadyAfter int32
	Renderer   *Renderer
	calls      atomic.Int32
}

func NewLoader(readyAfter int32) *Loader {
	return &Loader{ReadyAfter: readyAfter, Renderer: &Renderer{}}
}

func (l *Loader) Ready() (mapview.Renderer, bool) {
	n := l.calls.Add(1)
	if l.ReadyAfter < 0 || n <= l.ReadyAfter {
		return nil, false
	}
	return l.Renderer, true
}

func (l *Loader) Calls() int { return int(l.calls.Load()) }

type Renderer struct {
	Fail bool

	mu   sync.Mutex
	maps []*Map
}

func (r *Renderer) NewMap(center mapview.LatLng, zoom int) (mapview.Map, error) {
	if r.Fail {
		return nil, errors.New("renderer refused map")
	}
	m := &Map{Center: center, Zoom: zoom}
	r.mu.Lock()
	r.maps = append(r.maps, m)
	r.mu.Unlock()
	return m, nil
}

func (r *Renderer) Maps() []*Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Map(nil), r.maps...)
}

type Fit struct {
	Bounds  orb.Bound
	Padding [2]int
}

type Map struct {
	Center mapview.LatLng
	Zoom   int

	mu      sync.Mutex
	tiles   []mapview.TileLayer
	markers []*Marker
	fits    []Fit
	removed int
	orphans int
}

func (m *Map) AddTileLayer(layer mapview.TileLayer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiles = append(m.tiles, layer)
}

func (m *Map) AddMarker(pos mapview.LatLng, look mapview.Appearance, onClick func()) mapview.Marker {
	mk := &Marker{pos: pos, icon: look.Icon, popup: look.PopupHTML, onClick: onClick}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers = append(m.markers, mk)
	return mk
}

func (m *Map) FitBounds(bounds orb.Bound, padding [2]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fits = append(m.fits, Fit{Bounds: bounds, Padding: padding})
}

func (m *Map) Remove() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed++
	for _, mk := range m.markers {
		if !mk.Removed() {
			m.orphans++
		}
	}
}

func (m *Map) Tiles() []mapview.TileLayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mapview.TileLayer(nil), m.tiles...)
}

func (m *Map) Fits() []Fit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Fit(nil), m.fits...)
}

// Removed counts Remove calls.
func (m *Map) Removed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed
}

// Orphans counts markers still live when the map was removed.
func (m *Map) Orphans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orphans
}

// Created returns every marker ever added, removed ones included.
func (m *Map) Created() []*Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Marker(nil), m.markers...)
}

// Live returns the markers not yet removed.
func (m *Map) Live() []*Marker {
	var out []*Marker
	for _, mk := range m.Created() {
		if !mk.Removed() {
			out = append(out, mk)
		}
	}
	return out
}

type Marker struct {
	mu      sync.Mutex
	pos     mapview.LatLng
	icon    mapview.IconSpec
	popup   string
	onClick func()
	updates int
	removed bool
}

func (mk *Marker) SetLatLng(pos mapview.LatLng) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.pos = pos
	mk.updates++
}

func (mk *Marker) SetIcon(icon mapview.IconSpec) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.icon = icon
	mk.updates++
}

func (mk *Marker) SetPopupContent(html string) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.popup = html
	mk.updates++
}

func (mk *Marker) Remove() {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.removed = true
}

func (mk *Marker) Pos() mapview.LatLng {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.pos
}

func (mk *Marker) Icon() mapview.IconSpec {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.icon
}

func (mk *Marker) Popup() string {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.popup
}

// Updates counts setter calls since creation.
func (mk *Marker) Updates() int {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.updates
}

func (mk *Marker) Removed() bool {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.removed
}

// Click invokes the handler bound at creation, as a user click would.
func (mk *Marker) Click() {
	mk.mu.Lock()
	fn := mk.onClick
	mk.mu.Unlock()
	if fn != nil {
		fn()
	}
}
