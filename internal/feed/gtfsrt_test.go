package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

func vehicleEntity(entityID, vehicleID string, lat, lon, bearing, speed float32) *gtfs.FeedEntity {
	return &gtfs.FeedEntity{
		Id: proto.String(entityID),
		Vehicle: &gtfs.VehiclePosition{
			Vehicle: &gtfs.VehicleDescriptor{Id: proto.String(vehicleID)},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(lat),
				Longitude: proto.Float32(lon),
				Bearing:   proto.Float32(bearing),
				Speed:     proto.Float32(speed),
			},
		},
	}
}

func TestGtfsRtFetch(t *testing.T) {
	t.Parallel()

	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfs.FeedEntity{
			vehicleEntity("e1", "42", 48.5, 9.25, 180, 12.5),
			{Id: proto.String("no-vehicle")},
			{Id: proto.String("no-position"), Vehicle: &gtfs.VehiclePosition{Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("7")}}},
		},
	}
	body, err := proto.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	states, err := NewGtfsRt(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("Fetch returned %d states, want 1: %+v", len(states), states)
	}
	got := states[0]
	if got.ID != 42 || got.Lat != 48.5 || got.Lon != 9.25 || got.Direction != 180 || got.Speed != 12.5 {
		t.Fatalf("state = %+v", got)
	}
}

func TestGtfsRtFetchGarbage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}))
	defer srv.Close()

	if _, err := NewGtfsRt(srv.URL, time.Second).Fetch(context.Background()); !IsFormat(err) {
		t.Fatalf("garbage body: err=%v, want format error", err)
	}
}
