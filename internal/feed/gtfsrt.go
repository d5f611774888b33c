package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"trasima-livemap/internal/vehicle"
)

// GtfsRt reads a GTFS-Realtime VehiclePositions feed.
type GtfsRt struct {
	url        string
	httpClient *http.Client
}

func NewGtfsRt(url string, timeout time.Duration) *GtfsRt {
	return &GtfsRt{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *GtfsRt) Fetch(ctx context.Context) ([]vehicle.State, error) {
	resp, err := get(ctx, s.httpClient, s.url, "application/x-protobuf")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkErr(err)
	}
	var msg gtfs.FeedMessage
	if err := proto.Unmarshal(body, &msg); err != nil {
		return nil, formatErr(fmt.Errorf("gtfs-rt decode: %w", err))
	}
	return statesFromFeed(&msg), nil
}

// statesFromFeed keeps entities that carry both a vehicle id and a position.
func statesFromFeed(msg *gtfs.FeedMessage) []vehicle.State {
	states := make([]vehicle.State, 0, len(msg.GetEntity()))
	for _, ent := range msg.GetEntity() {
		vp := ent.GetVehicle()
		if vp == nil || vp.GetPosition() == nil {
			continue
		}
		id := vp.GetVehicle().GetId()
		if id == "" {
			continue
		}
		pos := vp.GetPosition()
		if pos.Latitude == nil || pos.Longitude == nil {
			continue
		}
		states = append(states, vehicle.State{
			ID:        vehicle.IDFromRef(id),
			Lat:       float64(pos.GetLatitude()),
			Lon:       float64(pos.GetLongitude()),
			Speed:     float64(pos.GetSpeed()),
			Direction: float64(pos.GetBearing()),
		})
	}
	return states
}
