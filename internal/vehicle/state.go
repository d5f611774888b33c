package vehicle

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// State is one vehicle position as delivered by the data endpoint.
// Direction is a heading in degrees (0-360).
type State struct {
	ID        int64   `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Speed     float64 `json:"speed"`
	Direction float64 `json:"direction"`
}

// maxSafeID keeps hashed ids inside the integer range a JSON number can carry exactly.
const maxSafeID = 1<<53 - 1

// IDFromRef maps a textual vehicle reference (GTFS-RT vehicle id, SIRI VehicleRef)
// onto an integer id. Decimal references keep their numeric value.
func IDFromRef(ref string) int64 {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.ParseInt(ref, 10, 64); err == nil && n >= 0 && n <= maxSafeID {
		return n
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(ref))
	return int64(h.Sum64() & maxSafeID)
}
