package tracker

import (
	"math"
	"testing"

	"pricewatch/internal/okx/stream"

	"go.uber.org/zap"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func tick(symbol string, last float64) stream.PriceTick {
	return stream.PriceTick{Symbol: symbol, Last: last, Open24h: last}
}

func TestUpperCrossingRebasesBand(t *testing.T) {
	tr := New(0.01, zap.NewNop())
	tr.SetBand("BTCUSDT", 100, 110)

	c := tr.Update(tick("BTCUSDT", 111))
	if c == nil {
		t.Fatal("expected a crossing")
	}
	if c.Direction != DirectionUpper {
		t.Errorf("direction = %s, want upper", c.Direction)
	}
	if c.Threshold != 110 {
		t.Errorf("threshold = %v, want 110", c.Threshold)
	}
	if !almostEqual(c.NewBand.Min, 109.89) || !almostEqual(c.NewBand.Max, 112.11) {
		t.Errorf("rebased band = %+v, want {109.89 112.11}", c.NewBand)
	}

	band, ok := tr.Band("BTCUSDT")
	if !ok || !almostEqual(band.Min, 109.89) || !almostEqual(band.Max, 112.11) {
		t.Errorf("stored band = %+v, want the rebased one", band)
	}
}

func TestLowerCrossingRebasesBand(t *testing.T) {
	tr := New(0.01, zap.NewNop())
	tr.SetBand("BTCUSDT", 100, 110)

	c := tr.Update(tick("BTCUSDT", 95))
	if c == nil {
		t.Fatal("expected a crossing")
	}
	if c.Direction != DirectionLower {
		t.Errorf("direction = %s, want lower", c.Direction)
	}
	if c.Threshold != 100 {
		t.Errorf("threshold = %v, want 100", c.Threshold)
	}
	if !almostEqual(c.NewBand.Min, 94.05) || !almostEqual(c.NewBand.Max, 95.95) {
		t.Errorf("rebased band = %+v, want {94.05 95.95}", c.NewBand)
	}
}

func TestWithinBandAndEqualityAreNotCrossings(t *testing.T) {
	tr := New(0.01, zap.NewNop())
	tr.SetBand("BTCUSDT", 100, 110)

	for _, price := range []float64{105, 100, 110} {
		if c := tr.Update(tick("BTCUSDT", price)); c != nil {
			t.Errorf("price %v produced a crossing: %+v", price, c)
		}
	}
}

func TestMaxCheckedBeforeMin(t *testing.T) {
	tr := New(0.01, zap.NewNop())
	// Inverted band stored verbatim; a price violating both edges must
	// classify as upper because max is evaluated first.
	tr.SetBand("BTCUSDT", 110, 100)

	c := tr.Update(tick("BTCUSDT", 105))
	if c == nil {
		t.Fatal("expected a crossing")
	}
	if c.Direction != DirectionUpper {
		t.Errorf("direction = %s, want upper", c.Direction)
	}
}

func TestChangePercentUsesPreviousTick(t *testing.T) {
	tr := New(0.01, zap.NewNop())
	tr.SetBand("BTCUSDT", 50, 105)
	if c := tr.Update(tick("BTCUSDT", 100)); c != nil {
		t.Fatalf("unexpected crossing on first tick: %+v", c)
	}

	c := tr.Update(tick("BTCUSDT", 111))
	if c == nil {
		t.Fatal("expected a crossing")
	}
	if !almostEqual(c.ChangePercent, 11) {
		t.Errorf("change percent = %v, want 11", c.ChangePercent)
	}
}

func TestChangePercentZeroWhenPreviousUnknown(t *testing.T) {
	tr := New(0.01, zap.NewNop())
	tr.SetBand("BTCUSDT", 100, 110)

	c := tr.Update(tick("BTCUSDT", 120))
	if c == nil {
		t.Fatal("expected a crossing")
	}
	if c.ChangePercent != 0 {
		t.Errorf("change percent = %v, want 0 without a previous tick", c.ChangePercent)
	}
}

func TestSymbolWithoutBandIsTrackedButNeverAlerts(t *testing.T) {
	tr := New(0.01, zap.NewNop())

	for i := 0; i < 3; i++ {
		if c := tr.Update(tick("ETHUSDT", 3000+float64(i))); c != nil {
			t.Fatalf("crossing for bandless symbol: %+v", c)
		}
	}

	p, ok := tr.Price("ETHUSDT")
	if !ok || p.Last != 3002 {
		t.Errorf("latest price = %+v (ok=%v), want last 3002", p, ok)
	}
	if _, ok := tr.Band("ETHUSDT"); ok {
		t.Error("bandless symbol acquired a band")
	}
}

func TestSetBandReplacesUnconditionally(t *testing.T) {
	tr := New(0.01, zap.NewNop())
	tr.SetBand("BTCUSDT", 100, 110)
	tr.SetBand("BTCUSDT", 200, 220)

	band, ok := tr.Band("BTCUSDT")
	if !ok || band.Min != 200 || band.Max != 220 {
		t.Errorf("band = %+v, want {200 220}", band)
	}
}

func TestCrossingKey(t *testing.T) {
	c := Crossing{Symbol: "BTCUSDT", Direction: DirectionUpper}
	if got := c.Key(); got != "BTCUSDT:upper" {
		t.Errorf("key = %q, want BTCUSDT:upper", got)
	}
}

func TestSnapshot(t *testing.T) {
	tr := New(0.01, zap.NewNop())
	tr.SetBand("BTCUSDT", 100, 110)
	tr.Update(tick("BTCUSDT", 105))
	tr.Update(tick("ETHUSDT", 3000)) // no band

	snap := tr.Snapshot()
	btc := snap["BTCUSDT"]
	if btc.Band == nil || btc.Band.Min != 100 || btc.Band.Max != 110 {
		t.Errorf("snapshot band = %+v, want {100 110}", btc.Band)
	}
	if btc.Latest == nil || btc.Latest.Last != 105 {
		t.Errorf("snapshot latest = %+v, want last 105", btc.Latest)
	}
	eth := snap["ETHUSDT"]
	if eth.Band != nil {
		t.Errorf("bandless symbol has band in snapshot: %+v", eth.Band)
	}
	if eth.Latest == nil || eth.Latest.Last != 3000 {
		t.Errorf("snapshot latest = %+v, want last 3000", eth.Latest)
	}
}
