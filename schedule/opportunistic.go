package schedule

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/ionogram"
	"github.com/hb9tf/chirpsounder/sounding"
)

// DefaultPause between two transmissions of one opportunistic worker.
const DefaultPause = 100 * time.Millisecond

// OpportunisticPolicy follows parameter files written by the detector while a
// chirp is still being received. Workers race for each file, the Lease makes
// sure only one of them analyzes it.
type OpportunisticPolicy struct {
	OutputDir            string
	SampleRate           float64
	MaxAnalysisFrequency float64
	Channel              string

	// Rank staggers the first poll of the workers of a pool.
	Rank int
	// Owner is recorded in the markers this worker creates.
	Owner        string
	PollInterval time.Duration
	Pause        time.Duration
	Lease        Lease

	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error

	// OnClaim is called with the result of every claim attempt, if set.
	OnClaim func(won bool)

	started bool
}

func (o *OpportunisticPolicy) withDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = sounding.DefaultPollInterval
	}
	if o.Pause <= 0 {
		o.Pause = DefaultPause
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Lease == nil {
		o.Lease = FileLease{Now: o.Now}
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
}

func (o *OpportunisticPolicy) Next(ctx context.Context) (Job, error) {
	o.withDefaults()
	wait := o.Pause
	if !o.started {
		// Keep the workers of a pool from all going for the same file first.
		wait = time.Duration(o.Rank) * o.PollInterval
		o.started = true
	}
	if err := o.Sleep(ctx, wait); err != nil {
		return Job{}, err
	}

	for {
		job, ok := o.claim()
		if ok {
			return job, nil
		}
		if err := o.Sleep(ctx, o.PollInterval); err != nil {
			return Job{}, err
		}
	}
}

type candidate struct {
	path    string
	modTime time.Time
}

// candidates lists today's parameter files, most recently modified first.
func (o *OpportunisticPolicy) candidates(now time.Time) []candidate {
	dir := filepath.Join(o.OutputDir, ionogram.DirName(now))
	files, err := filepath.Glob(filepath.Join(dir, parPattern))
	if err != nil {
		glog.Warningf("unable to list %s: %s", dir, err)
		return nil
	}
	var cs []candidate
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			continue
		}
		cs = append(cs, candidate{f, fi.ModTime()})
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].modTime.Equal(cs[j].modTime) {
			return cs[i].path > cs[j].path
		}
		return cs[i].modTime.After(cs[j].modTime)
	})
	return cs
}

func (o *OpportunisticPolicy) claim() (Job, bool) {
	now := o.Now()
	for _, c := range o.candidates(now) {
		if held, err := o.Lease.Held(c.path); err != nil || held {
			continue
		}
		p, err := ReadParams(c.path)
		if err != nil {
			glog.Warningf("skipping %s: %s", c.path, err)
			continue
		}
		tx := p.Transmission(o.SampleRate, o.Channel)
		left := sounding.Duration(o.MaxAnalysisFrequency, tx.ChirpRate) - now.Sub(tx.Start).Seconds()
		if left <= 0 {
			continue
		}

		won, err := o.Lease.TryAcquire(c.path, o.Owner)
		if err != nil {
			glog.Warningf("claiming %s: %s", c.path, err)
		}
		if o.OnClaim != nil {
			o.OnClaim(won)
		}
		if !won {
			continue
		}
		glog.Infof("Rank %d analyzing %s time left in sweep %1.2f s", o.Rank, c.path, left)
		return Job{Transmission: tx, ParFile: c.path}, true
	}
	return Job{}, false
}
