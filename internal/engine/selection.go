package engine

import (
	"trasima-livemap/internal/mapview"
	"trasima-livemap/internal/vehicle"
)

// Selection is the vehicle driving the detail panel. It references a marker
// by id and never owns it.
type Selection struct {
	state vehicle.State
	ok    bool
}

func (s *Selection) Select(v vehicle.State) {
	s.state, s.ok = v, true
}

// Refresh replaces the selected state when v carries the selected id.
func (s *Selection) Refresh(v vehicle.State) bool {
	if !s.ok || s.state.ID != v.ID {
		return false
	}
	s.state = v
	return true
}

// ClearIf drops the selection when it points at id.
func (s *Selection) ClearIf(id int64) bool {
	if !s.ok || s.state.ID != id {
		return false
	}
	s.state, s.ok = vehicle.State{}, false
	return true
}

func (s *Selection) Current() (vehicle.State, bool) {
	return s.state, s.ok
}

// Details is the formatted, read-only view of the selection; nil when empty.
func (s *Selection) Details() *mapview.Details {
	if !s.ok {
		return nil
	}
	d := mapview.FormatDetails(s.state)
	return &d
}
