package mapview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrUnavailable means the rendering capability did not load in time.
	ErrUnavailable = errors.New("map renderer could not be loaded (no internet connection?)")
	ErrReleased    = errors.New("map already released")
)

const (
	DefaultReadyTimeout = 4 * time.Second
	DefaultReadyPoll    = 50 * time.Millisecond
)

type Options struct {
	Center    LatLng
	Zoom      int
	Tiles     TileLayer
	ReadyPoll time.Duration
}

func DefaultOptions() Options {
	return Options{
		Center: LatLng{Lat: 48.0, Lon: 9.0},
		Zoom:   12,
		Tiles: TileLayer{
			URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			MaxZoom:     19,
			Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a>`,
		},
		ReadyPoll: DefaultReadyPoll,
	}
}

// Lifecycle owns the single map instance of a page.
type Lifecycle struct {
	opts Options

	mu       sync.Mutex
	m        Map
	released bool
}

func NewLifecycle(opts Options) *Lifecycle {
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = DefaultReadyPoll
	}
	return &Lifecycle{opts: opts}
}

// Acquire waits up to timeout for loader to become ready, then creates the map
// and its tile layer. An existing map is returned as is; a cancelled ctx or a
// released lifecycle creates nothing.
func (l *Lifecycle) Acquire(ctx context.Context, loader Loader, timeout time.Duration) (Map, error) {
	if m, ok := l.Map(); ok {
		return m, nil
	}
	if err := l.usable(ctx); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	r, err := waitReady(ctx, loader, timeout, l.opts.ReadyPoll)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m != nil {
		return l.m, nil
	}
	if l.released {
		return nil, ErrReleased
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := r.NewMap(l.opts.Center, l.opts.Zoom)
	if err != nil {
		return nil, fmt.Errorf("create map: %w", err)
	}
	m.AddTileLayer(l.opts.Tiles)
	l.m = m
	return m, nil
}

func (l *Lifecycle) usable(ctx context.Context) error {
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if released {
		return ErrReleased
	}
	return ctx.Err()
}

// Map returns the live instance, if any.
func (l *Lifecycle) Map() (Map, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m, l.m != nil
}

// Release disposes the map once. Markers must be removed by their owner first.
func (l *Lifecycle) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	if l.m != nil {
		l.m.Remove()
		l.m = nil
	}
}

func waitReady(ctx context.Context, loader Loader, timeout, step time.Duration) (Renderer, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(step)
	defer tick.Stop()
	for {
		if r, ok := loader.Ready(); ok {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrUnavailable
		case <-tick.C:
		}
	}
}
