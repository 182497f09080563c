// Package pet defines the dragon's needs and growth state.
// This package is PURE and must NOT import any infrastructure packages.
package pet

// Gauge bounds.
const (
	GaugeMin = 0
	GaugeMax = 100
)

// Gauge is a need level clamped to [GaugeMin, GaugeMax].
type Gauge struct {
	value int
}

// NewGauge creates a gauge at the given initial value, clamped into range.
func NewGauge(initial int) Gauge {
	return Gauge{value: clamp(initial)}
}

// Value returns the current level.
func (g *Gauge) Value() int {
	return g.value
}

// Increase raises the gauge, saturating at GaugeMax.
// Negative amounts are ignored.
func (g *Gauge) Increase(amount int) {
	if amount <= 0 {
		return
	}
	g.value = clamp(g.value + amount)
}

// Decrease lowers the gauge, flooring at GaugeMin.
// Negative amounts are ignored.
func (g *Gauge) Decrease(amount int) {
	if amount <= 0 {
		return
	}
	g.value = clamp(g.value - amount)
}

// Full reports whether the gauge is saturated.
func (g *Gauge) Full() bool {
	return g.value == GaugeMax
}

func clamp(v int) int {
	if v < GaugeMin {
		return GaugeMin
	}
	if v > GaugeMax {
		return GaugeMax
	}
	return v
}
