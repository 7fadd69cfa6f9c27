package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hb9tf/chirpsounder/sounding"
)

func TestFilterRate(t *testing.T) {
	tt := []struct {
		name     string
		filter   FilterRate
		rate     float64
		expected bool
	}{
		{"open", FilterRate{}, 100e3, false},
		{"within", FilterRate{RateLow: 50e3, RateHigh: 200e3}, 100e3, false},
		{"negative within", FilterRate{RateLow: 50e3, RateHigh: 200e3}, -100e3, false},
		{"too slow", FilterRate{RateLow: 50e3}, 10e3, true},
		{"too fast", FilterRate{RateHigh: 200e3}, -500e3, true},
		{"on bound", FilterRate{RateLow: 100e3, RateHigh: 100e3}, 100e3, false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.filter.ShouldIgnore(&sounding.Transmission{ChirpRate: tc.rate}))
		})
	}
}

func TestIgnore(t *testing.T) {
	filters := []Filterer{
		&FilterRate{RateLow: 50e3},
		NewFilterSounder(1, 2),
	}
	assert.False(t, Ignore(&sounding.Transmission{ChirpRate: 100e3, SounderID: 1}, filters))
	// Rejected by the first filter only.
	assert.True(t, Ignore(&sounding.Transmission{ChirpRate: 10e3, SounderID: 1}, filters))
	assert.True(t, Ignore(&sounding.Transmission{ChirpRate: 100e3, SounderID: 3}, filters))
	assert.False(t, Ignore(&sounding.Transmission{ChirpRate: 100e3, SounderID: 3}, nil))
	assert.False(t, NewFilterSounder().ShouldIgnore(&sounding.Transmission{SounderID: 9}))
}
