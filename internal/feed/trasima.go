package feed

import (
	"context"
	"net/http"
	"strings"
	"time"

	"trasima-livemap/internal/vehicle"
)

// VehiclesPath is the data endpoint of the trasima API.
const VehiclesPath = "/api/trasima/vehicles"

// Trasima reads the JSON vehicle list served by the trasima simulation backend.
type Trasima struct {
	url        string
	httpClient *http.Client
}

func NewTrasima(url string, timeout time.Duration) *Trasima {
	return &Trasima{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TrasimaURL joins an API base address with the vehicles endpoint.
func TrasimaURL(apiBase string) string {
	return strings.TrimRight(apiBase, "/") + VehiclesPath
}

func (s *Trasima) Fetch(ctx context.Context) ([]vehicle.State, error) {
	resp, err := get(ctx, s.httpClient, s.url, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	states, err := vehicle.Decode(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, networkErr(ctx.Err())
		}
		return nil, formatErr(err)
	}
	return states, nil
}
