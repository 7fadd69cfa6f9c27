package schedule

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/sdr"
	"github.com/hb9tf/chirpsounder/sounding"
)

// Timing is the known schedule of a periodic sounder: a chirp starts every
// Rep seconds, ChirpT seconds after each multiple of Rep since the epoch.
type Timing struct {
	ID        int     `toml:"id"`
	Rep       float64 `toml:"rep"`
	ChirpT    float64 `toml:"chirpt"`
	ChirpRate float64 `toml:"chirp_rate"`
}

func (t Timing) Validate() error {
	if !(t.Rep > 0) {
		return fmt.Errorf("sounder %d: repetition period must be positive, got %g", t.ID, t.Rep)
	}
	if t.ChirpRate == 0 || math.IsNaN(t.ChirpRate) {
		return fmt.Errorf("sounder %d: invalid chirp rate %g", t.ID, t.ChirpRate)
	}
	return nil
}

// NextStart returns the first start of the sounder at or after t0.
func (t Timing) NextStart(t0 *big.Rat) *big.Rat {
	rep := sounding.Rat(t.Rep)
	q := new(big.Rat).Quo(t0, rep)
	next := new(big.Rat).Mul(rep, new(big.Rat).SetInt(sounding.Floor(q)))
	next.Add(next, sounding.Rat(t.ChirpT))
	for next.Cmp(t0) < 0 {
		next.Add(next, rep)
	}
	return next
}

// AnalyticPolicy predicts the next transmission of the sounders owned by this
// worker from their known timing.
type AnalyticPolicy struct {
	Source     sdr.Source
	Channel    string
	SampleRate float64
	Timings    []Timing

	PollInterval time.Duration
	Sleep        func(context.Context, time.Duration) error

	// last holds the start of the latest transmission handed out per sounder.
	last map[int]*big.Rat
}

func (a *AnalyticPolicy) Next(ctx context.Context) (Job, error) {
	if len(a.Timings) == 0 {
		return Job{}, errors.New("no sounder timings for this worker")
	}
	if a.Sleep == nil {
		a.Sleep = sleep
	}
	if a.PollInterval <= 0 {
		a.PollInterval = sounding.DefaultPollInterval
	}
	if a.last == nil {
		a.last = map[int]*big.Rat{}
	}

	for {
		earliest, latest, err := a.Source.Bounds(a.Channel)
		if err == nil {
			return a.predict(earliest, latest), nil
		}
		glog.Warningf("no bounds for channel %s: %s", a.Channel, err)
		if err := a.Sleep(ctx, a.PollInterval); err != nil {
			return Job{}, err
		}
	}
}

func (a *AnalyticPolicy) predict(earliest, latest int64) Job {
	sr := sounding.Rat(a.SampleRate)
	t0 := new(big.Rat).SetInt(sounding.Floor(new(big.Rat).Quo(new(big.Rat).SetInt64(earliest), sr)))

	best := -1
	var bestStart, bestWait *big.Rat
	for i, t := range a.Timings {
		next := t.NextStart(t0)
		if last, ok := a.last[t.ID]; ok {
			rep := sounding.Rat(t.Rep)
			for next.Cmp(last) <= 0 {
				next.Add(next, rep)
			}
		}
		wait := new(big.Rat).Sub(next, t0)
		if best < 0 || wait.Cmp(bestWait) < 0 {
			best, bestStart, bestWait = i, next, wait
		}
	}

	t := a.Timings[best]
	a.last[t.ID] = bestStart
	start := sounding.RatTime(bestStart)
	glog.Infof("Chirp id %d analyzing chirp-rate %1.2f kHz/s chirpt %1.4f rep %1.2f", t.ID, t.ChirpRate/1e3, t.ChirpT, t.Rep)
	glog.Infof("Buffer extent %1.2f-%1.2f launching next chirp at %s", float64(earliest)/a.SampleRate, float64(latest)/a.SampleRate, start.Format(time.RFC3339Nano))

	return Job{
		Transmission: sounding.Transmission{
			Start:      start,
			StartIndex: sounding.Floor(new(big.Rat).Mul(bestStart, sr)).Int64(),
			ChirpRate:  t.ChirpRate,
			SounderID:  t.ID,
			Channel:    a.Channel,
		},
		Deadline: time.Duration(a.SampleRate / math.Abs(t.ChirpRate) * float64(time.Second)),
	}
}
