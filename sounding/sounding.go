// Package sounding streams one chirp transmission out of a sample source and
// downconverts it window by window into a decimated baseband record.
package sounding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/downconvert"
	"github.com/hb9tf/chirpsounder/sdr"
)

const (
	DefaultStep         = 1000
	DefaultPollInterval = time.Second
)

// Transmission identifies one sounder event. It is not modified once handed
// to Run.
type Transmission struct {
	Start time.Time
	// StartIndex is the absolute sample index of Start.
	StartIndex int64
	ChirpRate  float64
	SounderID  int
	Channel    string
}

func (t Transmission) Validate() error {
	if t.ChirpRate == 0 || math.IsNaN(t.ChirpRate) || math.IsInf(t.ChirpRate, 0) {
		return fmt.Errorf("invalid chirp rate %g", t.ChirpRate)
	}
	return nil
}

func (t Transmission) String() string {
	return fmt.Sprintf("sounder %d chirp-rate %.2f kHz/s t0 %.6f (%s) i0 %d", t.SounderID, t.ChirpRate/1e3, Seconds(t.Start), t.Start.Format(time.RFC3339Nano), t.StartIndex)
}

// Duration of the sweep up to maxAnalysisFrequency, in seconds.
func Duration(maxAnalysisFrequency, chirpRate float64) float64 {
	return maxAnalysisFrequency / math.Abs(chirpRate)
}

// WindowCount returns the number of windows of step decimated samples that
// cover duration seconds.
func WindowCount(duration, sampleRate float64, decimation, step int) int {
	return int(duration*sampleRate/float64(step*decimation)) + 1
}

type Options struct {
	SampleRate           float64
	Decimation           int
	Step                 int
	MaxAnalysisFrequency float64

	// Realtime makes Run wait for a live source to fill up.
	Realtime bool
	// ReadAhead is the number of samples the source has to hold beyond the
	// current window before it is read. Defaults to one second of samples.
	ReadAhead    int64
	PollInterval time.Duration
	// Deadline is the wall clock time processing is expected to take.
	// Defaults to the sweep duration.
	Deadline time.Duration

	// Sleep defaults to a context aware time.Sleep.
	Sleep func(context.Context, time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	if o.ReadAhead <= 0 {
		o.ReadAhead = int64(o.SampleRate)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Record is the decimated baseband of one transmission.
type Record struct {
	Samples        []complex64
	Windows        int
	MissingWindows int

	Deadline   time.Duration
	Processing time.Duration
	Waiting    time.Duration
}

// Speed is how many times faster than the deadline the record was produced.
func (r *Record) Speed() float64 {
	if r.Processing <= 0 {
		return math.Inf(1)
	}
	return r.Deadline.Seconds() / r.Processing.Seconds()
}

// stream is the per-invocation window state.
type stream struct {
	tx     Transmission
	src    sdr.Source
	dc     downconvert.Downconverter
	opts   Options
	cursor int64
	out    []complex64
	tail   int
	rec    *Record
}

// Run downconverts tx window by window. Windows that cannot be read are
// zero-filled and the downconverter's clock is advanced instead, so the
// frequency axis stays aligned even across gaps. It only fails when ctx is
// done.
func Run(ctx context.Context, tx Transmission, src sdr.Source, dc downconvert.Downconverter, opts Options) (*Record, error) {
	opts = opts.withDefaults()
	start := time.Now()

	duration := Duration(opts.MaxAnalysisFrequency, tx.ChirpRate)
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = time.Duration(duration * float64(time.Second))
	}
	windows := WindowCount(duration, opts.SampleRate, opts.Decimation, opts.Step)

	s := &stream{
		tx:     tx,
		src:    src,
		dc:     dc,
		opts:   opts,
		cursor: tx.StartIndex,
		out:    make([]complex64, windows*opts.Step),
		tail:   dc.FilterTail(),
		rec:    &Record{Windows: windows, Deadline: deadline},
	}
	for i := 0; i < windows; i++ {
		if err := s.window(ctx, i); err != nil {
			return nil, err
		}
	}

	s.rec.Samples = s.out
	s.rec.Processing = time.Since(start) - s.rec.Waiting
	return s.rec, nil
}

func (s *stream) window(ctx context.Context, i int) error {
	step := s.opts.Step
	dec := s.opts.Decimation
	length := step*dec + s.tail
	out := s.out[i*step : (i+1)*step]

	raw, err := s.read(ctx, length)
	if err != nil && !errors.Is(err, sdr.ErrUnavailable) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		glog.Warningf("%s: window %d read failed: %s\n", s.tx, i, err)
	}
	if err == nil {
		if err = s.dc.Consume(raw, out); err != nil {
			glog.Warningf("%s: window %d downconversion failed: %s\n", s.tx, i, err)
		}
	}
	if err != nil {
		glog.V(2).Infof("%s: missing window %d at sample %d", s.tx, i, s.cursor)
		s.dc.AdvanceTime(int64(step * dec))
		clear(out)
		s.rec.MissingWindows++
	}

	s.cursor += int64(step * dec)
	return nil
}

func (s *stream) read(ctx context.Context, length int) ([]complex64, error) {
	if s.opts.Realtime {
		if err := s.waitFor(ctx, s.cursor+int64(length)); err != nil {
			return nil, err
		}
	}
	return s.src.Read(s.cursor, length, s.tx.Channel)
}

// waitFor blocks until the source holds samples up to end plus the read
// ahead margin.
func (s *stream) waitFor(ctx context.Context, end int64) error {
	for {
		_, latest, err := s.src.Bounds(s.tx.Channel)
		if err != nil {
			return err
		}
		if end+s.opts.ReadAhead <= latest {
			return nil
		}
		t := time.Now()
		if err := s.opts.Sleep(ctx, s.opts.PollInterval); err != nil {
			return err
		}
		s.rec.Waiting += time.Since(t)
	}
}
