// Package queue keeps a view's copy of the clinic queue fresh by polling the
// queue status endpoint.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/clinicdesk/internal/model"
)

// ErrStopped is returned by Refresh after Stop.
var ErrStopped = errors.New("poller stopped")

const (
	defaultInterval   = 3 * time.Second
	defaultMinVisible = 500 * time.Millisecond
	flightKey         = "status"
)

// Fetcher returns the server's current queue snapshot.
type Fetcher interface {
	QueueStatus(ctx context.Context) (model.QueueSnapshot, error)
}

// Config holds polling configuration.
type Config struct {
	Interval time.Duration
	// MinVisible is how long Refreshing stays true after a manual refresh
	// starts, however fast the request completes.
	MinVisible time.Duration
}

// Poller fetches the queue on a fixed interval and on demand. Snapshots are
// applied in request-issue order: a response older than the last applied one
// is dropped. A scheduled tick is skipped while a fetch is in flight and a
// manual refresh joins the in-flight fetch. A Poller is started once; after
// Stop no snapshot is applied and no update callback runs.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	logger  zerolog.Logger
	now     func() time.Time
	group   singleflight.Group
	workers sync.WaitGroup

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	stopped      bool
	issued       uint64
	applied      uint64
	inFlight     int
	snapshot     model.QueueSnapshot
	hasSnapshot  bool
	manual       int
	refreshUntil time.Time
	onUpdate     func(model.QueueSnapshot)

	// deliverMu serializes applying a snapshot with Stop, so that Stop
	// returning means no callback is running or will run.
	deliverMu sync.Mutex
}

// NewPoller creates a poller. Zero config values take the defaults (3s
// interval, 500ms minimum refresh indication); a negative MinVisible turns the
// minimum off.
func NewPoller(fetcher Fetcher, cfg Config, logger zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	switch {
	case cfg.MinVisible == 0:
		cfg.MinVisible = defaultMinVisible
	case cfg.MinVisible < 0:
		cfg.MinVisible = 0
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// OnUpdate registers fn to receive every applied snapshot.
func (p *Poller) OnUpdate(fn func(model.QueueSnapshot)) {
	p.mu.Lock()
	p.onUpdate = fn
	p.mu.Unlock()
}

// Start fetches immediately, then every interval until Stop or ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil || p.stopped {
		p.mu.Unlock()
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	ctx, done := p.ctx, p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		p.tick()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()
}

// Stop cancels the schedule and any in-flight request. Responses that arrive
// afterwards are discarded. Stop does not wait for canceled requests to
// unwind, so it is safe to call from code a fetch triggers; use Wait for that.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	// wait out a delivery that passed the stopped check before we set it
	p.deliverMu.Lock()
	p.deliverMu.Unlock()
}

// Wait blocks until every fetch started before Stop has returned, including
// the hooks its response ran. Call it after Stop, never from an update
// callback or from code a fetch triggers.
func (p *Poller) Wait() {
	p.workers.Wait()
}

// tick starts a scheduled fetch unless one is already in flight.
func (p *Poller) tick() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	if p.inFlight > 0 {
		p.mu.Unlock()
		p.logger.Debug().Msg("queue poll skipped, fetch in flight")
		return
	}
	p.workers.Add(1)
	p.mu.Unlock()

	ch := p.group.DoChan(flightKey, p.flight)
	go func() {
		defer p.workers.Done()
		res := <-ch
		switch {
		case res.Err == nil, errors.Is(res.Err, ErrStopped), errors.Is(res.Err, context.Canceled):
		default:
			p.logger.Warn().Err(res.Err).Msg("queue poll failed")
		}
	}()
}

// Refresh fetches out of band and waits for the result. If a fetch is already
// in flight it waits for that one instead of issuing another. The error is
// returned to the caller; the previous snapshot is kept on failure.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.manual++
	if until := p.now().Add(p.cfg.MinVisible); until.After(p.refreshUntil) {
		p.refreshUntil = until
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.manual--
		p.mu.Unlock()
	}()

	select {
	case res := <-p.group.DoChan(flightKey, p.flight):
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch issues a new request even when one is in flight, for callers that
// just changed server state and must not be answered by an older request.
func (p *Poller) Fetch(ctx context.Context) error {
	return p.fetch(ctx)
}

func (p *Poller) flight() (any, error) {
	return nil, p.fetch(p.baseContext())
}

func (p *Poller) baseContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// fetch issues one request and applies its response if it is the newest seen.
func (p *Poller) fetch(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.issued++
	seq := p.issued
	p.inFlight++
	// added under mu before stopped can be set, so Wait never races an Add
	p.workers.Add(1)
	p.mu.Unlock()
	defer p.workers.Done()

	snap, err := p.fetcher.QueueStatus(ctx)

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	if seq <= p.applied {
		p.mu.Unlock()
		p.logger.Debug().Uint64("seq", seq).Uint64("applied", p.applied).Msg("stale queue snapshot dropped")
		return nil
	}
	p.applied = seq
	p.snapshot = snap
	p.hasSnapshot = true
	fn := p.onUpdate
	p.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return nil
}

// Snapshot returns the last applied snapshot and whether there is one.
func (p *Poller) Snapshot() (model.QueueSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, p.hasSnapshot
}

// Refreshing reports whether the manual refresh indicator should show.
func (p *Poller) Refreshing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manual > 0 || p.now().Before(p.refreshUntil)
}

// InFlight reports whether a fetch is outstanding.
func (p *Poller) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight > 0
}
