package filter

import (
	"math"

	"github.com/hb9tf/chirpsounder/sounding"
)

type Filterer interface {
	ShouldIgnore(*sounding.Transmission) bool
}

// Ignore reports whether any of the filters rejects the transmission.
func Ignore(t *sounding.Transmission, filters []Filterer) bool {
	for _, f := range filters {
		if f.ShouldIgnore(t) {
			return true
		}
	}
	return false
}

// FilterRate keeps transmissions whose absolute chirp rate lies within
// [RateLow, RateHigh] in Hz/s. A zero bound is open.
type FilterRate struct {
	RateLow  float64
	RateHigh float64
}

func (f *FilterRate) ShouldIgnore(t *sounding.Transmission) bool {
	rate := math.Abs(t.ChirpRate)
	// Check if the sweep is slower than what we want to include.
	if f.RateLow > 0 && rate < f.RateLow {
		return true
	}
	// Check if the sweep is faster than what we want to include.
	if f.RateHigh > 0 && rate > f.RateHigh {
		return true
	}
	return false
}

// FilterSounder keeps transmissions of the listed sounder ids only.
type FilterSounder struct {
	IDs map[int]bool
}

func NewFilterSounder(ids ...int) *FilterSounder {
	f := &FilterSounder{IDs: map[int]bool{}}
	for _, id := range ids {
		f.IDs[id] = true
	}
	return f
}

func (f *FilterSounder) ShouldIgnore(t *sounding.Transmission) bool {
	return len(f.IDs) > 0 && !f.IDs[t.SounderID]
}
