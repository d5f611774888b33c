package engine

import (
	"trasima-livemap/internal/mapview"
	"trasima-livemap/internal/vehicle"
)

// DefaultFitPadding is applied on both axes, in pixels.
var DefaultFitPadding = [2]int{24, 24}

// ViewportFitter frames the first non-empty snapshot and then stays quiet for
// the lifetime of the map.
type ViewportFitter struct {
	Padding [2]int
	fitted  bool
}

func (f *ViewportFitter) MaybeFit(m mapview.Map, snapshot []vehicle.State) bool {
	if f.fitted || m == nil || len(snapshot) == 0 {
		return false
	}
	m.FitBounds(mapview.Bounds(snapshot), f.Padding)
	f.fitted = true
	return true
}

func (f *ViewportFitter) Fitted() bool { return f.fitted }
