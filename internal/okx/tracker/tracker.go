package tracker

import (
	"sync"

	"pricewatch/internal/okx/stream"

	"go.uber.org/zap"
)

// Direction classifies which band edge a crossing violated.
type Direction string

const (
	DirectionUpper Direction = "upper"
	DirectionLower Direction = "lower"
)

// Band is the active monitoring range for one symbol. Invariant: Min <= Max
// for every band the tracker creates itself; SetBand stores whatever the
// caller provides.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Crossing describes a price observation outside the active band. It
// carries everything needed to format an alert without re-reading
// tracker state.
type Crossing struct {
	Symbol        string
	Direction     Direction
	Price         float64
	Threshold     float64 // the violated band edge
	ChangePercent float64 // versus the previous tick; 0 when unknown
	NewBand       Band    // the band after rebasing around Price
}

// Key returns the deduplication key for the crossing.
func (c Crossing) Key() string {
	return c.Symbol + ":" + string(c.Direction)
}

// SymbolState is a point-in-time view of one symbol for the status surface.
type SymbolState struct {
	Latest *stream.PriceTick `json:"latest,omitempty"`
	Band   *Band             `json:"band,omitempty"`
}

// Tracker owns per-symbol bands and latest prices. Updates and reads
// share one lock; at a few dozen symbols contention is not a concern.
type Tracker struct {
	mu       sync.RWMutex
	bands    map[string]Band
	latest   map[string]stream.PriceTick
	warned   map[string]bool
	fraction float64
	logger   *zap.Logger
}

// New creates a tracker that rebases crossed bands to ±fraction around
// the crossing price.
func New(fraction float64, logger *zap.Logger) *Tracker {
	return &Tracker{
		bands:    make(map[string]Band),
		latest:   make(map[string]stream.PriceTick),
		warned:   make(map[string]bool),
		fraction: fraction,
		logger:   logger,
	}
}

// SetBand replaces the band for symbol unconditionally.
func (t *Tracker) SetBand(symbol string, min, max float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bands[symbol] = Band{Min: min, Max: max}
}

// Band returns the active band for symbol.
func (t *Tracker) Band(symbol string) (Band, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bands[symbol]
	return b, ok
}

// Price returns the most recent valid tick for symbol.
func (t *Tracker) Price(symbol string) (stream.PriceTick, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.latest[symbol]
	return p, ok
}

// Update stores tick as the symbol's latest price and evaluates the
// band. It returns a non-nil Crossing when the price escaped the band,
// after rebasing the band around the crossing price. A symbol without a
// configured band is tracked for price only and warned once.
func (t *Tracker) Update(tick stream.PriceTick) *Crossing {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, hadPrev := t.latest[tick.Symbol]
	t.latest[tick.Symbol] = tick

	band, ok := t.bands[tick.Symbol]
	if !ok {
		if !t.warned[tick.Symbol] {
			t.warned[tick.Symbol] = true
			t.logger.Warn("no band configured, crossing evaluation disabled",
				zap.String("symbol", tick.Symbol))
		}
		return nil
	}

	// Max is checked before min; at most one crossing per update.
	var dir Direction
	var threshold float64
	switch {
	case tick.Last > band.Max:
		dir, threshold = DirectionUpper, band.Max
	case tick.Last < band.Min:
		dir, threshold = DirectionLower, band.Min
	default:
		return nil
	}

	rebased := Band{
		Min: tick.Last * (1 - t.fraction),
		Max: tick.Last * (1 + t.fraction),
	}
	t.bands[tick.Symbol] = rebased

	pct := 0.0
	if hadPrev && prev.Last != 0 {
		pct = (tick.Last - prev.Last) / prev.Last * 100
	}

	return &Crossing{
		Symbol:        tick.Symbol,
		Direction:     dir,
		Price:         tick.Last,
		Threshold:     threshold,
		ChangePercent: pct,
		NewBand:       rebased,
	}
}

// Snapshot returns a copy of every tracked symbol's latest price and band.
func (t *Tracker) Snapshot() map[string]SymbolState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]SymbolState, len(t.bands))
	for sym, b := range t.bands {
		band := b
		out[sym] = SymbolState{Band: &band}
	}
	for sym, p := range t.latest {
		tick := p
		st := out[sym]
		st.Latest = &tick
		out[sym] = st
	}
	return out
}
