package mapview

import (
	"fmt"
	"strconv"

	"trasima-livemap/internal/vehicle"
)

const iconSize = 28

// arrowPath is the vehicle glyph, pointing north before rotation.
const arrowPath = "M12 2l6.5 20-6.5-4-6.5 4L12 2z"

// IconSpec is a div icon: HTML content plus the geometry Leaflet needs to place it.
type IconSpec struct {
	ClassName   string  `json:"className"`
	HTML        string  `json:"html"`
	Size        [2]int  `json:"iconSize"`
	Anchor      [2]int  `json:"iconAnchor"`
	PopupAnchor [2]int  `json:"popupAnchor"`
	RotationDeg float64 `json:"rotation"`
}

type Appearance struct {
	Icon      IconSpec
	PopupHTML string
}

// Render builds the icon and popup for one vehicle. It depends on v only.
func Render(v vehicle.State) Appearance {
	return Appearance{Icon: iconFor(v), PopupHTML: popupHTML(v)}
}

func iconFor(v vehicle.State) IconSpec {
	rot := strconv.FormatFloat(v.Direction, 'f', -1, 64)
	html := `<div class="vehicle-icon" style="--rot:` + rot + `deg" aria-label="Vehicle ` +
		strconv.FormatInt(v.ID, 10) + `"><svg viewBox="0 0 24 24" role="img" focusable="false"><path d="` +
		arrowPath + `"></path></svg></div>`
	return IconSpec{
		ClassName:   "vehicle-marker",
		HTML:        html,
		Size:        [2]int{iconSize, iconSize},
		Anchor:      [2]int{iconSize / 2, iconSize / 2},
		PopupAnchor: [2]int{0, -iconSize / 2},
		RotationDeg: v.Direction,
	}
}

func popupHTML(v vehicle.State) string {
	d := FormatDetails(v)
	return fmt.Sprintf(`<div style="min-width: 220px">`+
		`<div style="font-weight: 600; margin-bottom: 6px">Vehicle #%s</div>`+
		`<div><b>Speed</b>: %s</div>`+
		`<div><b>Direction</b>: %s</div>`+
		`<div><b>Position</b>: %s, %s</div>`+
		`</div>`, d.ID, d.Speed, d.Direction, d.Lat, d.Lon)
}

// Details is the fixed-precision text shown in the selection panel.
type Details struct {
	ID        string `json:"id"`
	Lat       string `json:"lat"`
	Lon       string `json:"lon"`
	Speed     string `json:"speed"`
	Direction string `json:"direction"`
}

func FormatDetails(v vehicle.State) Details {
	return Details{
		ID:        strconv.FormatInt(v.ID, 10),
		Lat:       strconv.FormatFloat(v.Lat, 'f', 6, 64),
		Lon:       strconv.FormatFloat(v.Lon, 'f', 6, 64),
		Speed:     strconv.FormatFloat(v.Speed, 'f', 2, 64),
		Direction: strconv.FormatFloat(v.Direction, 'f', 1, 64) + "°",
	}
}
