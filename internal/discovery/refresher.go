package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// DefaultDiscoveryPeriod is the time between two discovery cycles.
const DefaultDiscoveryPeriod = 600 * time.Second

// Announcement is one device returned by a discovery query.
type Announcement struct {
	ID   string
	Type string // "" when the device announced no type
	Addr netip.AddrPort
}

// Discoverer issues a network-wide discovery query with no id or type filter.
// Announcements are returned in arrival order.
type Discoverer interface {
	Discover(ctx context.Context) ([]Announcement, error)
}

// CycleResult summarises one discovery cycle.
type CycleResult struct {
	Started  time.Time
	Duration time.Duration
	Devices  int
	Err      error
}

// Refresher periodically populates a Directory from the network.
//
// A failed cycle leaves the directory untouched and is retried on the next
// tick; there is no backoff.
//
// Thread Safety: Run must be called once; RunOnce may be called concurrently
// with Run.
type Refresher struct {
	dir        *Directory
	discoverer Discoverer
	period     time.Duration
	now        func() time.Time

	onCycle   func(CycleResult)
	onCycleMu sync.RWMutex

	logger Logger
}

// RefresherConfig holds configuration for a Refresher.
type RefresherConfig struct {
	// Period is the time between cycles. Default: 600s.
	Period time.Duration

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// NewRefresher creates a discovery task writing into dir.
func NewRefresher(dir *Directory, discoverer Discoverer, cfg RefresherConfig) *Refresher {
	period := cfg.Period
	if period <= 0 {
		period = DefaultDiscoveryPeriod
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Refresher{
		dir:        dir,
		discoverer: discoverer,
		period:     period,
		now:        now,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the refresher.
func (r *Refresher) SetLogger(logger Logger) {
	r.logger = logger
}

// OnCycle registers a callback invoked after every cycle.
func (r *Refresher) OnCycle(fn func(CycleResult)) {
	r.onCycleMu.Lock()
	r.onCycle = fn
	r.onCycleMu.Unlock()
}

// Run performs a cycle immediately and then once per period until ctx is
// cancelled. Cycle errors are logged and never returned.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

// RunOnce performs a single discovery cycle.
//
// Announcements are applied in arrival order, so when an id appears twice in
// one batch the later announcement wins. On error nothing is written.
//
// Returns:
//   - int: number of announcements applied
//   - error: wrapped discovery error, or nil
func (r *Refresher) RunOnce(ctx context.Context) (int, error) {
	started := r.now()

	announcements, err := r.discoverer.Discover(ctx)
	if err != nil {
		err = fmt.Errorf("discovery cycle: %w", err)
		r.report(CycleResult{Started: started, Duration: r.now().Sub(started), Err: err})
		return 0, err
	}

	for _, a := range announcements {
		r.dir.Upsert(a.ID, a.Type, a.Addr, r.now())
	}

	r.report(CycleResult{
		Started:  started,
		Duration: r.now().Sub(started),
		Devices:  len(announcements),
	})
	return len(announcements), nil
}

func (r *Refresher) runLogged(ctx context.Context) {
	n, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // shutting down
		}
		r.logger.Warn("discovery cycle skipped", "error", err)
		return
	}
	r.logger.Info("discovery cycle complete", "announcements", n, "devices", r.dir.Len())
}

func (r *Refresher) report(res CycleResult) {
	r.onCycleMu.RLock()
	fn := r.onCycle
	r.onCycleMu.RUnlock()

	if fn != nil {
		fn(res)
	}
}
