// Package mapview declares the narrow rendering capability the live map needs
// and the pieces built directly on it: map lifecycle, marker appearance and
// bounding regions.
package mapview

import (
	"github.com/paulmach/orb"

	"trasima-livemap/internal/vehicle"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func Position(v vehicle.State) LatLng { return LatLng{Lat: v.Lat, Lon: v.Lon} }

// TileLayer describes the base raster layer attached to a new map.
type TileLayer struct {
	URL         string `json:"url"`
	MaxZoom     int    `json:"maxZoom"`
	Attribution string `json:"attribution"`
}

// Loader reports whether the rendering capability is available yet.
type Loader interface {
	Ready() (Renderer, bool)
}

type Renderer interface {
	NewMap(center LatLng, zoom int) (Map, error)
}

// Map is a live rendering surface. Markers added to it are owned by it.
type Map interface {
	AddTileLayer(layer TileLayer)
	// AddMarker places a marker; onClick runs on the renderer's goroutine.
	AddMarker(pos LatLng, look Appearance, onClick func()) Marker
	FitBounds(bounds orb.Bound, padding [2]int)
	Remove()
}

type Marker interface {
	SetLatLng(pos LatLng)
	SetIcon(icon IconSpec)
	SetPopupContent(html string)
	Remove()
}

// Bounds returns the smallest region covering every vehicle position.
func Bounds(states []vehicle.State) orb.Bound {
	mp := make(orb.MultiPoint, 0, len(states))
	for _, v := range states {
		mp = append(mp, orb.Point{v.Lon, v.Lat})
	}
	return mp.Bound()
}
