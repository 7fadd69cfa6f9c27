// Package downconvert turns wideband raw samples into decimated complex
// baseband aligned with a linear chirp.
package downconvert

import (
	"fmt"
	"math"
	"sync"

	"github.com/mjibson/go-dsp/window"
)

// Downconverter is the matched-filter/decimator kernel. Implementations keep
// phase and time continuity across calls.
type Downconverter interface {
	// Consume reads len(out)*decimation+FilterTail() raw samples and writes
	// len(out) decimated samples.
	Consume(raw []complex64, out []complex64) error
	// AdvanceTime moves the internal clock by n raw samples without input.
	AdvanceTime(n int64)
	// FilterTail is the number of raw samples of look-ahead needed per call.
	FilterTail() int
}

// Config of a Chirp downconverter.
type Config struct {
	// F0 is the frequency offset of the chirp at t=0 in Hz.
	F0 float64
	// Rate is the chirp rate in Hz/s.
	Rate       float64
	Decimation int
	// SamplePeriod is the raw sample period in seconds.
	SamplePeriod float64
	// FilterLen is the low-pass filter length in decimated samples.
	FilterLen int
	Threads   int
}

// Chirp dechirps against exp(i*2π(f0 t + rate t²/2)), low-pass filters and
// decimates.
type Chirp struct {
	cfg  Config
	taps []float64
	// n is the raw sample index, relative to the chirp start, of the next
	// sample handed to Consume.
	n int64
}

func New(cfg Config) (*Chirp, error) {
	if cfg.Decimation <= 0 {
		return nil, fmt.Errorf("decimation must be positive, got %d", cfg.Decimation)
	}
	if cfg.SamplePeriod <= 0 {
		return nil, fmt.Errorf("sample period must be positive, got %g", cfg.SamplePeriod)
	}
	if cfg.FilterLen <= 0 {
		cfg.FilterLen = 1
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	return &Chirp{
		cfg:  cfg,
		taps: lowpass(cfg.FilterLen*cfg.Decimation, 1.0/(2.0*float64(cfg.Decimation))),
	}, nil
}

// lowpass returns a Hann windowed sinc with unity DC gain. cutoff is given in
// cycles per sample.
func lowpass(length int, cutoff float64) []float64 {
	taps := window.Hann(length)
	if length == 1 {
		taps[0] = 1
		return taps
	}
	mid := float64(length-1) / 2
	sum := 0.0
	for i := range taps {
		x := float64(i) - mid
		sinc := 2 * cutoff
		if x != 0 {
			sinc = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		taps[i] *= sinc
		sum += taps[i]
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

func (c *Chirp) FilterTail() int {
	return len(c.taps)
}

func (c *Chirp) AdvanceTime(n int64) {
	c.n += n
}

// reference returns conj(chirp) for raw samples [c.n, c.n+length).
func (c *Chirp) reference(length int) []complex128 {
	ref := make([]complex128, length)
	dt := c.cfg.SamplePeriod
	for i := range ref {
		t := float64(c.n+int64(i)) * dt
		// Phase in cycles, reduced before scaling to radians.
		cycles := c.cfg.F0*t + 0.5*c.cfg.Rate*t*t
		cycles -= math.Floor(cycles)
		s, co := math.Sincos(-2 * math.Pi * cycles)
		ref[i] = complex(co, s)
	}
	return ref
}

func (c *Chirp) Consume(raw []complex64, out []complex64) error {
	dec := c.cfg.Decimation
	need := len(out)*dec + len(c.taps)
	if len(raw) < need {
		return fmt.Errorf("need %d raw samples for %d outputs, got %d", need, len(out), len(raw))
	}

	ref := c.reference(need)
	mixed := make([]complex128, need)
	for i := range mixed {
		mixed[i] = complex128(raw[i]) * ref[i]
	}

	threads := min(c.cfg.Threads, max(len(out), 1))
	chunk := (len(out) + threads - 1) / threads
	var wg sync.WaitGroup
	for lo := 0; lo < len(out); lo += chunk {
		hi := min(lo+chunk, len(out))
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for j := lo; j < hi; j++ {
				var acc complex128
				base := mixed[j*dec : j*dec+len(c.taps)]
				for k, h := range c.taps {
					acc += base[k] * complex(h, 0)
				}
				out[j] = complex64(acc)
			}
		}(lo, hi)
	}
	wg.Wait()

	c.n += int64(len(out) * dec)
	return nil
}
