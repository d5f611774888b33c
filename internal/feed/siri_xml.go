package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trasima-livemap/internal/vehicle"
)

// SiriXML reads a SIRI VehicleMonitoring XML delivery.
type SiriXML struct {
	url        string
	httpClient *http.Client
}

func NewSiriXML(url string, timeout time.Duration) *SiriXML {
	return &SiriXML{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *SiriXML) Fetch(ctx context.Context) ([]vehicle.State, error) {
	resp, err := get(ctx, s.httpClient, s.url, "application/xml")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	states, err := statesFromSiriXML(resp.Body)
	if err != nil {
		return nil, formatErr(fmt.Errorf("siri xml decode: %w", err))
	}
	return states, nil
}

// activity collects the raw text of one VehicleActivity element.
type activity struct {
	ref, lat, lon, bearing, velocity string
}

func (a activity) state() (vehicle.State, bool) {
	if a.ref == "" {
		return vehicle.State{}, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(a.lat), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(a.lon), 64)
	if err1 != nil || err2 != nil {
		return vehicle.State{}, false
	}
	speed, _ := strconv.ParseFloat(strings.TrimSpace(a.velocity), 64)
	bearing, _ := strconv.ParseFloat(strings.TrimSpace(a.bearing), 64)
	return vehicle.State{
		ID:        vehicle.IDFromRef(a.ref),
		Lat:       lat,
		Lon:       lon,
		Speed:     speed,
		Direction: bearing,
	}, true
}

// statesFromSiriXML streams the document; element names are matched on
// Name.Local so namespaced and bare documents both work.
func statesFromSiriXML(r io.Reader) ([]vehicle.State, error) {
	dec := xml.NewDecoder(r)

	var (
		inSiri, inSD, inVMD, inVA, inMVJ, inVL bool
		cur                                    activity
		states                                 []vehicle.State
	)

	text := func(se *xml.StartElement) string {
		var v string
		if err := dec.DecodeElement(&v, se); err != nil {
			return ""
		}
		return v
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "Siri":
				inSiri = true
			case "ServiceDelivery":
				inSD = inSiri
			case "VehicleMonitoringDelivery":
				inVMD = inSD
			case "VehicleActivity":
				if inVMD {
					inVA = true
					cur = activity{}
				}
			case "MonitoredVehicleJourney":
				inMVJ = inVA
			case "VehicleLocation":
				inVL = inMVJ || inVA
			case "VehicleRef":
				if inMVJ || inVA {
					cur.ref = text(&se)
				}
			case "Bearing":
				if inMVJ {
					cur.bearing = text(&se)
				}
			case "Velocity":
				if inMVJ {
					cur.velocity = text(&se)
				}
			case "Latitude":
				if inVL {
					cur.lat = text(&se)
				}
			case "Longitude":
				if inVL {
					cur.lon = text(&se)
				}
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "VehicleLocation":
				inVL = false
			case "MonitoredVehicleJourney":
				inMVJ = false
			case "VehicleActivity":
				if inVA {
					inVA = false
					if st, ok := cur.state(); ok {
						states = append(states, st)
					}
				}
			case "VehicleMonitoringDelivery":
				inVMD = false
			case "ServiceDelivery":
				inSD = false
			case "Siri":
				inSiri = false
			}
		}
	}
	return states, nil
}
