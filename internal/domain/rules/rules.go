// Package rules contains the pure calculation logic for pet mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import "github.com/dragonsvault/server/internal/domain/pet"

// DecayParams holds the amount each decay tick removes.
type DecayParams struct {
	Amount int // Applied to both hunger and happiness
}

// DefaultDecay is the observed decay per tick.
var DefaultDecay = DecayParams{Amount: 5}

// ApplyDecay lowers both gauges by the configured amount. It runs even when
// the gauges are already empty; the floor makes that a no-op.
func ApplyDecay(s *pet.State, params DecayParams) {
	s.Hunger.Decrease(params.Amount)
	s.Happiness.Decrease(params.Amount)
}

// GrowthParams holds the experience granted per successful check.
type GrowthParams struct {
	Points int
}

// DefaultGrowth is the observed grant per check.
var DefaultGrowth = GrowthParams{Points: 3}

// GrowthEligible reports whether both gauges are saturated right now.
func GrowthEligible(s *pet.State) bool {
	return s.Hunger.Full() && s.Happiness.Full()
}

// ApplyGrowth grants experience when the dragon is eligible at call time and
// returns the points actually added (0 when ineligible or already capped).
func ApplyGrowth(s *pet.State, params GrowthParams) int {
	if !GrowthEligible(s) {
		return 0
	}
	before := s.Experience()
	s.GainExperience(params.Points)
	return s.Experience() - before
}
