// Package feed fetches vehicle snapshots from the supported upstream formats.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"trasima-livemap/internal/vehicle"
)

// Source yields one complete snapshot per call.
type Source interface {
	Fetch(ctx context.Context) ([]vehicle.State, error)
}

// Kind classifies fetch failures for status reporting.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindFormat
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

// Error is returned by every Source on failure.
type Error struct {
	Kind   Kind
	Status int // HTTP status code, 0 for transport or format errors
	Err    error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func networkErr(err error) error { return &Error{Kind: KindNetwork, Err: err} }

func formatErr(err error) error { return &Error{Kind: KindFormat, Err: err} }

func statusErr(resp *http.Response) error {
	return &Error{
		Kind:   KindNetwork,
		Status: resp.StatusCode,
		Err:    fmt.Errorf("HTTP %s", resp.Status),
	}
}

// IsNetwork reports whether err is a transport or HTTP status failure.
func IsNetwork(err error) bool { return kindOf(err) == KindNetwork }

// IsFormat reports whether err is a payload decoding or validation failure.
func IsFormat(err error) bool { return kindOf(err) == KindFormat }

func kindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Config selects and parameterises a Source.
type Config struct {
	Kind    string
	URL     string
	Timeout time.Duration
}

const (
	KindTrasima  = "trasima"
	KindGtfsRt   = "gtfsrt"
	KindSiriJSON = "siri-json"
	KindSiriXML  = "siri-xml"
)

// New builds the Source named by cfg.Kind.
func New(cfg Config) (Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	switch cfg.Kind {
	case KindTrasima, "":
		return NewTrasima(cfg.URL, cfg.Timeout), nil
	case KindGtfsRt:
		return NewGtfsRt(cfg.URL, cfg.Timeout), nil
	case KindSiriJSON:
		return NewSiriJSON(cfg.URL, cfg.Timeout), nil
	case KindSiriXML:
		return NewSiriXML(cfg.URL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("feed: unknown kind %q", cfg.Kind)
	}
}

// get issues a cache-bypassing GET and returns the response for a 2xx status.
func get(ctx context.Context, client *http.Client, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, networkErr(err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	resp, err := client.Do(req)
	if err != nil {
		return nil, networkErr(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, statusErr(resp)
	}
	return resp, nil
}
