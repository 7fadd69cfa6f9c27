// Package ionogram turns decimated chirp baseband into range/frequency power
// maps.
package ionogram

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/golang/glog"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// SpeedOfLight in m/s.
const SpeedOfLight = 299792458.0

var ErrInvalidConfig = errors.New("invalid ionogram configuration")

type Config struct {
	// FrequencyResolution is the sweep frequency spacing between rows in Hz.
	FrequencyResolution float64
	// RangeResolution is the range gate size in meters.
	RangeResolution float64
	// MaxRangeExtent crops range gates to |range| < MaxRangeExtent (meters).
	MaxRangeExtent float64
}

func (c Config) Validate() error {
	if !(c.FrequencyResolution > 0) {
		return fmt.Errorf("%w: frequency resolution must be positive, got %g", ErrInvalidConfig, c.FrequencyResolution)
	}
	if !(c.RangeResolution > 0) {
		return fmt.Errorf("%w: range resolution must be positive, got %g", ErrInvalidConfig, c.RangeResolution)
	}
	if !(c.MaxRangeExtent > 0) {
		return fmt.Errorf("%w: max range extent must be positive, got %g", ErrInvalidConfig, c.MaxRangeExtent)
	}
	return nil
}

// MetersPerHz converts a beat frequency offset of a sweep with the given rate
// into round trip propagation distance.
func MetersPerHz(rate float64) float64 {
	return (1.0 / rate) * SpeedOfLight / 2.0
}

// FFTLength is the even analysis window length that yields the configured
// range resolution, at least 2.
func FFTLength(sampleRate, rate, rangeResolution float64) int {
	n := 2 * int(math.Floor(sampleRate*math.Abs(MetersPerHz(rate))/rangeResolution/2.0))
	return max(n, 2)
}

// AnalysisWindow returns the taper of an n point spectrogram segment. A Hann
// window of fewer than 3 points is all zero, those lengths are not tapered.
func AnalysisWindow(n int) []float64 {
	if n < 3 {
		return window.Rectangular(n)
	}
	return window.Hann(n)
}

// FFTStep is the hop between analysis windows that yields the configured
// frequency resolution, at least 1.
func FFTStep(frequencyResolution, rate, sampleRate float64) int {
	n := int(math.Floor((frequencyResolution / math.Abs(rate)) * sampleRate))
	return max(n, 1)
}

// Ionogram is the power of one transmission over sweep frequency (rows) and
// range (columns).
type Ionogram struct {
	Power  [][]float64
	Freqs  []float64
	Ranges []float64

	Start     time.Time
	ChirpRate float64
	SounderID int
	Channel   string
	// SampleRate of the decimated record.
	SampleRate float64

	// Raw is the decimated record, only kept if configured.
	Raw []complex64
}

// Build computes the ionogram of a decimated record.
func Build(samples []complex64, chirpRate, sampleRate float64, cfg Config) (*Ionogram, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if chirpRate == 0 || !(sampleRate > 0) {
		return nil, fmt.Errorf("%w: chirp rate %g, sample rate %g", ErrInvalidConfig, chirpRate, sampleRate)
	}

	ds := MetersPerHz(chirpRate)
	fftLen := FFTLength(sampleRate, chirpRate, cfg.RangeResolution)
	fftStep := FFTStep(cfg.FrequencyResolution, chirpRate, sampleRate)

	x := make([]complex128, len(samples))
	for i, v := range samples {
		x[i] = cmplx.Conj(complex128(v))
	}
	if fftLen < 3 {
		glog.Warningf("range resolution %g m gives a %d point FFT at %g Hz, segments are not tapered", cfg.RangeResolution, fftLen, sampleRate)
	}
	power := Spectrogram(x, fftLen, fftStep, AnalysisWindow(fftLen))

	freqs := make([]float64, len(power))
	for i := range freqs {
		freqs[i] = chirpRate * float64(i) * float64(fftStep) / sampleRate
	}

	ranges := RangeGates(fftLen, sampleRate, ds)
	var keep []int
	for i, r := range ranges {
		if math.Abs(r) < cfg.MaxRangeExtent {
			keep = append(keep, i)
		}
	}

	cropped := make([][]float64, len(power))
	for i, row := range power {
		cropped[i] = make([]float64, len(keep))
		for j, k := range keep {
			cropped[i][j] = row[k]
		}
	}
	croppedRanges := make([]float64, len(keep))
	for j, k := range keep {
		croppedRanges[j] = ranges[k]
	}

	return &Ionogram{
		Power:      cropped,
		Freqs:      freqs,
		Ranges:     croppedRanges,
		ChirpRate:  chirpRate,
		SampleRate: sampleRate,
	}, nil
}

// shiftIdx maps a position in an FFT shifted spectrum (zero frequency in the
// middle) to the index of the unshifted coefficient.
func shiftIdx(j, n int) int {
	return (j + (n+1)/2) % n
}

// RangeGates returns the FFT shifted bin frequencies of an fftLen point
// spectrum at sampleRate, scaled by metersPerHz.
func RangeGates(fftLen int, sampleRate, metersPerHz float64) []float64 {
	fft := fourier.NewCmplxFFT(fftLen)
	gates := make([]float64, fftLen)
	for j := range gates {
		gates[j] = metersPerHz * fft.Freq(shiftIdx(j, fftLen)) * sampleRate
	}
	return gates
}

// Spectrogram returns |FFT(w*segment)|² with the zero frequency in the
// middle for consecutive segments of x of length len(w), step samples apart.
// Only complete segments are used.
func Spectrogram(x []complex128, fftLen, step int, w []float64) [][]float64 {
	if len(x) < fftLen {
		return [][]float64{}
	}
	nSpec := (len(x) - fftLen) / step
	fft := fourier.NewCmplxFFT(fftLen)
	seg := make([]complex128, fftLen)
	coeff := make([]complex128, fftLen)

	power := make([][]float64, nSpec)
	for i := range power {
		for k := range seg {
			seg[k] = x[i*step+k] * complex(w[k], 0)
		}
		fft.Coefficients(coeff, seg)
		row := make([]float64, fftLen)
		for j := range row {
			c := coeff[shiftIdx(j, fftLen)]
			row[j] = real(c)*real(c) + imag(c)*imag(c)
		}
		power[i] = row
	}
	return power
}

// Peak returns the largest power value.
func (i *Ionogram) Peak() float64 {
	peak := 0.0
	for _, row := range i.Power {
		for _, v := range row {
			peak = math.Max(peak, v)
		}
	}
	return peak
}
