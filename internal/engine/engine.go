// Package engine keeps the markers of one live map in step with the polled
// vehicle feed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"trasima-livemap/internal/feed"
	"trasima-livemap/internal/mapview"
	"trasima-livemap/internal/vehicle"
)

// Status is the observable state of the status line.
type Status struct {
	Error       string    `json:"error,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
	Count       int       `json:"count"`
}

// Observer receives UI state changes. Calls come from the engine goroutine.
type Observer interface {
	StatusChanged(Status)
	SelectionChanged(*mapview.Details)
}

type Options struct {
	Source            feed.Source
	Loader            mapview.Loader
	Map               mapview.Options
	Interval          time.Duration
	FetchTimeout      time.Duration
	ReadyTimeout      time.Duration
	SkipWhileInFlight bool
	FitPadding        [2]int
	Observer          Observer
	Logf              func(string, ...any)
}

type event interface{}

type (
	resultEvent struct{ res Result }
	clickEvent  struct{ id int64 }
	mapEvent    struct{ err error }
	queryEvent  struct{ reply chan []int64 }
)

// Engine is the single owner of a map's marker registry, selection, fit flag
// and status. Everything it owns is mutated on the Run goroutine only.
type Engine struct {
	opts      Options
	logf      func(string, ...any)
	lifecycle *mapview.Lifecycle
	poller    *Poller

	events  chan event
	closing chan struct{}
	started atomic.Bool

	rec       *Reconciler
	sel       *Selection
	fit       *ViewportFitter
	status    Status
	renderErr string
	last      []vehicle.State
	haveLast  bool
	lastSeq   uint64
}

func New(opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = mapview.DefaultReadyTimeout
	}
	if opts.FitPadding == [2]int{} {
		opts.FitPadding = DefaultFitPadding
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	e := &Engine{
		opts:      opts,
		logf:      logf,
		lifecycle: mapview.NewLifecycle(opts.Map),
		events:    make(chan event, 16),
		closing:   make(chan struct{}),
		sel:       &Selection{},
		fit:       &ViewportFitter{Padding: opts.FitPadding},
	}
	e.rec = NewReconciler(e.sel, e.Select)
	e.poller = NewPoller(opts.Source, opts.Interval, opts.FetchTimeout, logf)
	e.poller.SkipWhileInFlight = opts.SkipWhileInFlight
	return e
}

// Select marks the vehicle with id as selected, as a marker click does.
func (e *Engine) Select(id int64) { e.post(clickEvent{id: id}) }

// Markers returns the vehicle ids currently holding a marker.
func (e *Engine) Markers(ctx context.Context) ([]int64, error) {
	q := queryEvent{reply: make(chan []int64, 1)}
	select {
	case e.events <- q:
	case <-e.closing:
		return nil, errors.New("engine stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case ids := <-q.reply:
		return ids, nil
	case <-e.closing:
		return nil, errors.New("engine stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run acquires the map and polls until ctx ends, then removes every marker and
// releases the map. It can be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine: Run called twice")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := e.lifecycle.Acquire(ctx, e.opts.Loader, e.opts.ReadyTimeout)
		e.post(mapEvent{err: err})
	}()
	e.poller.Start(ctx, func(res Result) { e.post(resultEvent{res: res}) })
	e.publishStatus()

	for {
		select {
		case <-ctx.Done():
			close(e.closing)
			e.poller.Stop()
			cancel()
			wg.Wait()
			e.rec.Clear()
			e.lifecycle.Release()
			return nil
		case ev := <-e.events:
			if ctx.Err() != nil {
				continue
			}
			e.handle(ev)
		}
	}
}

func (e *Engine) post(ev event) {
	select {
	case e.events <- ev:
	case <-e.closing:
	}
}

func (e *Engine) handle(ev event) {
	switch ev := ev.(type) {
	case resultEvent:
		e.applyResult(ev.res)
	case clickEvent:
		e.selectVehicle(ev.id)
	case mapEvent:
		e.mapAcquired(ev.err)
	case queryEvent:
		ev.reply <- e.rec.IDs()
	}
}

func (e *Engine) mapAcquired(err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, mapview.ErrReleased) {
			return
		}
		e.logf("map unavailable: %v", err)
		e.renderErr = err.Error()
		e.publishStatus()
		return
	}
	e.logf("map ready")
	if e.haveLast {
		e.reconcile(e.last)
	}
}

func (e *Engine) applyResult(res Result) {
	if res.Err != nil {
		e.logf("poll error: %v", res.Err)
		e.status.Error = fmt.Sprintf("Server unreachable or failed to load (%v), retrying in %s.", res.Err, e.opts.Interval)
		e.publishStatus()
		return
	}
	if res.Seq < e.lastSeq {
		e.logf("applying snapshot #%d after #%d", res.Seq, e.lastSeq)
	} else {
		e.lastSeq = res.Seq
	}
	e.status = Status{LastUpdated: res.At, Count: len(res.Snapshot)}
	e.last, e.haveLast = res.Snapshot, true
	e.reconcile(res.Snapshot)
	e.publishStatus()
}

func (e *Engine) reconcile(snapshot []vehicle.State) {
	m, ok := e.lifecycle.Map()
	if !ok {
		return
	}
	before := e.sel.Details()
	ops := e.rec.Reconcile(m, snapshot)
	if ops.Changed() {
		e.logf("markers: %d created, %d updated, %d removed, %d total", ops.Created, ops.Updated, ops.Removed, e.rec.Len())
	}
	if e.fit.MaybeFit(m, snapshot) {
		e.logf("viewport fitted to %d vehicles", len(snapshot))
	}
	e.notifySelection(before)
}

func (e *Engine) selectVehicle(id int64) {
	v, ok := e.rec.State(id)
	if !ok {
		return
	}
	before := e.sel.Details()
	e.sel.Select(v)
	e.notifySelection(before)
}

func (e *Engine) notifySelection(before *mapview.Details) {
	after := e.sel.Details()
	if sameDetails(before, after) || e.opts.Observer == nil {
		return
	}
	e.opts.Observer.SelectionChanged(after)
}

func (e *Engine) publishStatus() {
	if e.opts.Observer == nil {
		return
	}
	st := e.status
	if e.renderErr != "" {
		st.Error = e.renderErr
	}
	e.opts.Observer.StatusChanged(st)
}

func sameDetails(a, b *mapview.Details) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
