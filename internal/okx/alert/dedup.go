package alert

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Deduper gates alert dispatch per key under a cooldown window. Keys
// are independent: different symbols or directions never suppress each
// other. Expired records are removed lazily on lookup, with a periodic
// sweep as a retention ceiling so a missed deletion cannot leak memory.
type Deduper struct {
	mu       sync.Mutex
	fired    map[string]time.Time
	cooldown time.Duration
	maxAge   time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewDeduper creates a deduper and starts its background sweep when
// sweepInterval is positive.
func NewDeduper(cooldown, sweepInterval, maxAge time.Duration, logger *zap.Logger) *Deduper {
	d := &Deduper{
		fired:    make(map[string]time.Time),
		cooldown: cooldown,
		maxAge:   maxAge,
		now:      time.Now,
		stop:     make(chan struct{}),
		logger:   logger,
	}
	if sweepInterval > 0 {
		go d.sweepLoop(sweepInterval)
	}
	return d
}

// ShouldDispatch reports whether an alert for key may fire now. A true
// result records the dispatch time under the lock, so at most one
// caller wins per cooldown window.
func (d *Deduper) ShouldDispatch(key string) bool {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if firedAt, ok := d.fired[key]; ok {
		if now.Sub(firedAt) < d.cooldown {
			return false
		}
		delete(d.fired, key) // lazy expiry
	}
	d.fired[key] = now
	return true
}

// ActiveCount returns the number of unexpired alert records.
func (d *Deduper) ActiveCount() int {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, firedAt := range d.fired {
		if now.Sub(firedAt) < d.cooldown {
			n++
		}
	}
	return n
}

// Stop terminates the background sweep.
func (d *Deduper) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *Deduper) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stop:
			return
		}
	}
}

// sweep removes records older than the retention ceiling. maxAge is
// longer than the cooldown, so the sweep never deletes a record the
// cooldown path still needs.
func (d *Deduper) sweep() {
	cutoff := d.now().Add(-d.maxAge)
	d.mu.Lock()
	removed := 0
	for key, firedAt := range d.fired {
		if firedAt.Before(cutoff) {
			delete(d.fired, key)
			removed++
		}
	}
	d.mu.Unlock()

	if removed > 0 {
		d.logger.Debug("swept expired alert records", zap.Int("removed", removed))
	}
}
