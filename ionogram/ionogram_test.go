package ionogram

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/mjibson/go-dsp/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFTParameters(t *testing.T) {
	tt := []struct {
		name            string
		freqRes         float64
		rangeRes        float64
		rate            float64
		sampleRate      float64
		expectedFFTLen  int
		expectedFFTStep int
	}{
		// 20 * 1498.96 / 3000 = 9.99 → 8; 1000 / 100e3 * 20 = 0.2 → clamped.
		{"low rate decimated", 1000, 3000, 100e3, 20, 8, 1},
		{"negative rate", 1000, 3000, -100e3, 20, 8, 1},
		{"typical", 5e3, 2e3, 100e3, 10e3, 7494, 500},
		{"coarse range", 5e3, 1e9, 100e3, 10e3, 2, 500},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedFFTLen, FFTLength(tc.sampleRate, tc.rate, tc.rangeRes))
			assert.Equal(t, tc.expectedFFTStep, FFTStep(tc.freqRes, tc.rate, tc.sampleRate))
		})
	}
}

func TestFFTLengthEvenAndPositive(t *testing.T) {
	for _, sr := range []float64{1, 20, 1e3, 1e4, 2.5e6} {
		for _, rate := range []float64{-500e3, -1e3, 10, 100e3, 1e6} {
			for _, rr := range []float64{1, 100, 3e3, 1e6} {
				n := FFTLength(sr, rate, rr)
				assert.GreaterOrEqual(t, n, 2)
				assert.Zero(t, n%2, "sr=%g rate=%g rr=%g", sr, rate, rr)
				assert.GreaterOrEqual(t, FFTStep(rr, rate, sr), 1)
			}
		}
	}
}

func TestRangeGatesSymmetric(t *testing.T) {
	gates := RangeGates(8, 20, MetersPerHz(100e3))
	require.Len(t, gates, 8)
	assert.Less(t, gates[0], 0.0)
	assert.Equal(t, 0.0, gates[4])
	for i := 1; i < len(gates); i++ {
		assert.Less(t, gates[i-1], gates[i])
		assert.Equal(t, gates[i], -gates[len(gates)-i])
	}
}

func testConfig() Config {
	return Config{FrequencyResolution: 1e3, RangeResolution: 3e3, MaxRangeExtent: math.Inf(1)}
}

func TestBuildShape(t *testing.T) {
	// 100 kHz/s at 20 Hz: fftlen 8, step 1.
	samples := make([]complex64, 100)
	iono, err := Build(samples, 100e3, 20, testConfig())
	require.NoError(t, err)

	require.Len(t, iono.Power, (100-8)/1)
	require.Len(t, iono.Freqs, len(iono.Power))
	require.Len(t, iono.Ranges, 8)
	for _, row := range iono.Power {
		require.Len(t, row, 8)
		for _, v := range row {
			assert.False(t, math.IsNaN(v))
			assert.Zero(t, v)
		}
	}
	assert.Equal(t, 0.0, iono.Freqs[0])
	assert.InDelta(t, 100e3/20, iono.Freqs[1], 1e-9)
	assert.Zero(t, iono.Peak())
}

func TestBuildCropsRanges(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRangeExtent = 7000
	iono, err := Build(make([]complex64, 100), 100e3, 20, cfg)
	require.NoError(t, err)

	// Gates are multiples of 20/8 * 1498.96 = 3747.4 m.
	require.Len(t, iono.Ranges, 3)
	for _, r := range iono.Ranges {
		assert.Less(t, math.Abs(r), 7000.0)
	}
	for _, row := range iono.Power {
		assert.Len(t, row, 3)
	}
}

func TestBuildEnergy(t *testing.T) {
	samples := make([]complex64, 64)
	for i := range samples {
		samples[i] = complex64(cmplx.Rect(1, 0.3*float64(i)))
	}
	iono, err := Build(samples, 100e3, 20, testConfig())
	require.NoError(t, err)

	w := window.Hann(8)
	for i, row := range iono.Power {
		var want, got float64
		for k := range w {
			v := complex128(samples[i+k]) * complex(w[k], 0)
			want += real(v)*real(v) + imag(v)*imag(v)
		}
		for _, v := range row {
			got += v
		}
		assert.InDelta(t, 8*want, got, 1e-6)
	}
}

func TestBuildTone(t *testing.T) {
	// A record tone at -fs/4 ends up at +fs/4 after conjugation.
	samples := make([]complex64, 64)
	for i := range samples {
		samples[i] = complex64(cmplx.Rect(1, -math.Pi/2*float64(i)))
	}
	iono, err := Build(samples, 100e3, 20, testConfig())
	require.NoError(t, err)

	row := iono.Power[0]
	best := 0
	for j, v := range row {
		if v > row[best] {
			best = j
		}
	}
	assert.Greater(t, iono.Ranges[best], 0.0)
	assert.InDelta(t, 5*MetersPerHz(100e3), iono.Ranges[best], 1e-6)
}

func TestAnalysisWindow(t *testing.T) {
	assert.Equal(t, []float64{1, 1}, AnalysisWindow(2))
	assert.Equal(t, window.Hann(8), AnalysisWindow(8))
	for _, n := range []int{2, 4, 8, 7494} {
		var sum float64
		for _, v := range AnalysisWindow(n) {
			sum += v
		}
		assert.Positive(t, sum, "n=%d", n)
	}
}

func TestBuildShortestFFT(t *testing.T) {
	cfg := testConfig()
	cfg.RangeResolution = 1e9
	samples := make([]complex64, 10)
	for i := range samples {
		samples[i] = 1
	}
	iono, err := Build(samples, 100e3, 20, cfg)
	require.NoError(t, err)

	require.Len(t, iono.Ranges, 2)
	require.Len(t, iono.Power, 8)
	for _, row := range iono.Power {
		var got float64
		for _, v := range row {
			got += v
		}
		// 2 point FFT of two unit samples: all energy in the DC bin.
		assert.InDelta(t, 4.0, got, 1e-9)
	}
	assert.InDelta(t, 4.0, iono.Peak(), 1e-9)
}

func TestBuildShortRecord(t *testing.T) {
	iono, err := Build(make([]complex64, 3), 100e3, 20, testConfig())
	require.NoError(t, err)
	assert.Empty(t, iono.Power)
	assert.Empty(t, iono.Freqs)
}

func TestBuildInvalid(t *testing.T) {
	tt := []struct {
		name string
		cfg  Config
		rate float64
		sr   float64
	}{
		{"zero frequency resolution", Config{RangeResolution: 1, MaxRangeExtent: 1}, 1, 1},
		{"negative range resolution", Config{FrequencyResolution: 1, RangeResolution: -1, MaxRangeExtent: 1}, 1, 1},
		{"zero extent", Config{FrequencyResolution: 1, RangeResolution: 1}, 1, 1},
		{"nan resolution", Config{FrequencyResolution: math.NaN(), RangeResolution: 1, MaxRangeExtent: 1}, 1, 1},
		{"zero rate", testConfig(), 0, 1},
		{"zero sample rate", testConfig(), 1, 0},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(make([]complex64, 10), tc.rate, tc.sr, tc.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
