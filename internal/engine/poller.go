package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"trasima-livemap/internal/feed"
	"trasima-livemap/internal/vehicle"
)

const (
	DefaultInterval     = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Result is the outcome of one fetch cycle. Seq orders cycles by start time.
type Result struct {
	Seq      uint64
	Snapshot []vehicle.State
	Err      error
	At       time.Time
}

// Poller fetches immediately and then on every tick of interval. Ticks do not
// wait for earlier fetches, so cycles may overlap unless SkipWhileInFlight is set.
type Poller struct {
	source       feed.Source
	interval     time.Duration
	fetchTimeout time.Duration
	logf         func(string, ...any)

	// SkipWhileInFlight drops a tick while a previous fetch is outstanding.
	SkipWhileInFlight bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup

	seq      atomic.Uint64
	inFlight atomic.Int32
}

func NewPoller(source feed.Source, interval, fetchTimeout time.Duration, logf func(string, ...any)) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Poller{
		source:       source,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		logf:         logf,
	}
}

func (p *Poller) Interval() time.Duration { return p.interval }

// Start begins polling. onResult is called one result at a time and must not
// block indefinitely; it is never called once Stop has returned.
func (p *Poller) Start(parent context.Context, onResult func(Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil || p.stopped {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx, onResult)
}

// Stop cancels the shared context of every cycle, stops the ticker and waits
// for in-flight fetches to unwind. Their results are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, onResult func(Result)) {
	defer p.wg.Done()
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.launch(ctx, onResult)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.launch(ctx, onResult)
		}
	}
}

func (p *Poller) launch(ctx context.Context, onResult func(Result)) {
	if p.SkipWhileInFlight && p.inFlight.Load() > 0 {
		p.logf("poll skipped: previous fetch still in flight")
		return
	}
	seq := p.seq.Add(1)
	p.inFlight.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Add(-1)

		fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
		states, err := p.source.Fetch(fctx)
		p.deliver(ctx, Result{Seq: seq, Snapshot: states, Err: err, At: time.Now()}, onResult)
	}()
}

func (p *Poller) deliver(ctx context.Context, res Result, onResult func(Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || ctx.Err() != nil {
		return
	}
	onResult(res)
}
