package discovery

import (
	"context"
	"time"
)

// Default expiry schedule.
const (
	DefaultCleanupInitialDelay = 30 * time.Second
	DefaultCleanupPeriod       = 600 * time.Second
	DefaultCleanupTimeout      = 3600 * time.Second
)

// Sweeper bounds the staleness of directory records so that devices which
// silently disappear are eventually forgotten.
type Sweeper struct {
	dir          *Directory
	initialDelay time.Duration
	period       time.Duration
	timeout      time.Duration
	now          func() time.Time
	logger       Logger
}

// SweeperConfig holds configuration for a Sweeper.
type SweeperConfig struct {
	// InitialDelay lets the first discovery cycle populate the directory
	// before the first sweep. Default: 30s.
	InitialDelay time.Duration

	// Period is the time between sweeps. Default: 600s.
	Period time.Duration

	// Timeout is the maximum record age. Default: 3600s.
	Timeout time.Duration

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// NewSweeper creates an expiry task for dir.
func NewSweeper(dir *Directory, cfg SweeperConfig) *Sweeper {
	s := &Sweeper{
		dir:          dir,
		initialDelay: cfg.InitialDelay,
		period:       cfg.Period,
		timeout:      cfg.Timeout,
		now:          cfg.Now,
		logger:       noopLogger{},
	}
	if s.initialDelay < 0 {
		s.initialDelay = DefaultCleanupInitialDelay
	}
	if s.period <= 0 {
		s.period = DefaultCleanupPeriod
	}
	if s.timeout <= 0 {
		s.timeout = DefaultCleanupTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// Run waits for the initial delay, sweeps, and then sweeps once per period
// until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	delay := time.NewTimer(s.initialDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		s.Sweep()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep removes every record older than the timeout and returns how many
// were removed.
func (s *Sweeper) Sweep() int {
	expired := s.dir.Expire(s.timeout, s.now())
	if len(expired) > 0 {
		ids := make([]string, 0, len(expired))
		for _, rec := range expired {
			ids = append(ids, rec.ID)
		}
		s.logger.Info("expired devices removed", "count", len(expired), "ids", ids)
	}
	return len(expired)
}
