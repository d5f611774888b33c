package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"trasima-livemap/internal/vehicle"
)

// SiriJSON reads a SIRI VehicleMonitoring delivery in its JSON rendering.
type SiriJSON struct {
	url        string
	httpClient *http.Client
}

func NewSiriJSON(url string, timeout time.Duration) *SiriJSON {
	return &SiriJSON{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *SiriJSON) Fetch(ctx context.Context) ([]vehicle.State, error) {
	resp, err := get(ctx, s.httpClient, s.url, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkErr(err)
	}
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, formatErr(fmt.Errorf("siri json decode: %w", err))
	}
	return statesFromSiriJSON(root), nil
}

// Walks Siri?.ServiceDelivery.VehicleMonitoringDelivery[].VehicleActivity[].
func statesFromSiriJSON(root map[string]any) []vehicle.State {
	if siri, ok := root["Siri"].(map[string]any); ok && siri != nil {
		root = siri
	}
	sd, _ := root["ServiceDelivery"].(map[string]any)
	vmdArr, _ := sd["VehicleMonitoringDelivery"].([]any)
	states := make([]vehicle.State, 0, 256)
	for _, vmdAny := range vmdArr {
		vmd, _ := vmdAny.(map[string]any)
		vaArr, _ := vmd["VehicleActivity"].([]any)
		for _, vaAny := range vaArr {
			va, _ := vaAny.(map[string]any)
			mvj, _ := va["MonitoredVehicleJourney"].(map[string]any)
			if mvj == nil {
				continue
			}
			ref := stringFrom(mvj["VehicleRef"])
			if ref == "" {
				ref = stringFromNested(mvj, "FramedVehicleJourneyRef", "DatedVehicleJourneyRef")
			}
			lat, lon := floatFromNested(mvj, "VehicleLocation", "Latitude"), floatFromNested(mvj, "VehicleLocation", "Longitude")
			if ref == "" || (lat == 0 && lon == 0) {
				continue
			}
			states = append(states, vehicle.State{
				ID:        vehicle.IDFromRef(ref),
				Lat:       lat,
				Lon:       lon,
				Speed:     floatFrom(mvj["Velocity"]),
				Direction: floatFrom(mvj["Bearing"]),
			})
		}
	}
	return states
}

func stringFrom(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func stringFromNested(m map[string]any, k1, k2 string) string {
	m1, _ := m[k1].(map[string]any)
	return stringFrom(m1[k2])
}

func floatFromNested(m map[string]any, k1, k2 string) float64 {
	m1, _ := m[k1].(map[string]any)
	return floatFrom(m1[k2])
}

func floatFrom(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
