package engine

import (
	"sort"

	"trasima-livemap/internal/mapview"
	"trasima-livemap/internal/vehicle"
)

// Ops counts what one reconciliation did to the marker registry.
type Ops struct {
	Created   int
	Updated   int
	Unchanged int
	Removed   int
}

// Changed reports whether markers were created or removed.
func (o Ops) Changed() bool { return o.Created > 0 || o.Removed > 0 }

type tracked struct {
	marker mapview.Marker
	state  vehicle.State
}

// Reconciler keeps exactly one marker per vehicle id of the latest snapshot.
type Reconciler struct {
	markers   map[int64]*tracked
	selection *Selection
	onClick   func(id int64)
}

func NewReconciler(sel *Selection, onClick func(id int64)) *Reconciler {
	return &Reconciler{
		markers:   make(map[int64]*tracked),
		selection: sel,
		onClick:   onClick,
	}
}

// Reconcile makes the registry match snapshot. Without a map it does nothing.
func (r *Reconciler) Reconcile(m mapview.Map, snapshot []vehicle.State) Ops {
	var ops Ops
	if m == nil {
		return ops
	}
	seen := make(map[int64]struct{}, len(snapshot))
	for _, v := range snapshot {
		seen[v.ID] = struct{}{}

		if t, ok := r.markers[v.ID]; ok {
			if t.state == v {
				ops.Unchanged++
			} else {
				look := mapview.Render(v)
				t.marker.SetLatLng(mapview.Position(v))
				t.marker.SetPopupContent(look.PopupHTML)
				t.marker.SetIcon(look.Icon)
				t.state = v
				ops.Updated++
			}
			r.selection.Refresh(v)
			continue
		}

		id := v.ID
		mk := m.AddMarker(mapview.Position(v), mapview.Render(v), func() { r.onClick(id) })
		r.markers[id] = &tracked{marker: mk, state: v}
		ops.Created++
	}

	for id, t := range r.markers {
		if _, ok := seen[id]; ok {
			continue
		}
		t.marker.Remove()
		delete(r.markers, id)
		r.selection.ClearIf(id)
		ops.Removed++
	}
	return ops
}

// State returns the latest state bound to the marker for id.
func (r *Reconciler) State(id int64) (vehicle.State, bool) {
	t, ok := r.markers[id]
	if !ok {
		return vehicle.State{}, false
	}
	return t.state, true
}

// IDs lists the registry keys in ascending order.
func (r *Reconciler) IDs() []int64 {
	ids := make([]int64, 0, len(r.markers))
	for id := range r.markers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Reconciler) Len() int { return len(r.markers) }

// Clear removes every marker, as done before the map itself goes away.
func (r *Reconciler) Clear() {
	for id, t := range r.markers {
		t.marker.Remove()
		delete(r.markers, id)
		r.selection.ClearIf(id)
	}
}
