// Package pipeline runs the analysis loop of one worker: pick a transmission,
// downconvert it, build and write its ionogram, repeat.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/downconvert"
	"github.com/hb9tf/chirpsounder/filter"
	"github.com/hb9tf/chirpsounder/ionogram"
	"github.com/hb9tf/chirpsounder/metrics"
	"github.com/hb9tf/chirpsounder/pool"
	"github.com/hb9tf/chirpsounder/schedule"
	"github.com/hb9tf/chirpsounder/sdr"
	"github.com/hb9tf/chirpsounder/sounding"
)

// ErrSkipped is returned by Process for transmissions rejected by a filter.
var ErrSkipped = errors.New("transmission skipped")

// DownconverterFactory builds the kernel for one transmission.
type DownconverterFactory func(tx sounding.Transmission) (downconvert.Downconverter, error)

// ChirpFactory returns a factory of pure Go chirp kernels sharing cfg.
func ChirpFactory(cfg func(rate float64) downconvert.Config) DownconverterFactory {
	return func(tx sounding.Transmission) (downconvert.Downconverter, error) {
		return downconvert.New(cfg(tx.ChirpRate))
	}
}

type Runner struct {
	Policy           schedule.Policy
	Source           sdr.Source
	NewDownconverter DownconverterFactory
	Options          sounding.Options
	Ionogram         ionogram.Config
	Writer           *ionogram.Writer
	Filters          []filter.Filterer

	Worker     pool.Worker
	Identifier string

	// Summaries receives an entry per written ionogram, if set.
	Summaries chan<- ionogram.Summary
	// Metrics may be nil.
	Metrics *metrics.Worker
}

// Run processes transmissions until the policy is exhausted or ctx is done.
// Failures of single transmissions are logged and skipped.
func (r *Runner) Run(ctx context.Context) error {
	for {
		job, err := r.Policy.Next(ctx)
		if errors.Is(err, schedule.ErrExhausted) {
			glog.Infof("Worker %s: no more transmissions", r.Worker)
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := r.Process(ctx, job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, ErrSkipped) {
				glog.Warningf("Worker %s: %s: %s", r.Worker, job.Transmission, err)
			}
		}
	}
}

// Process analyzes one transmission and returns the summary of the written
// ionogram.
func (r *Runner) Process(ctx context.Context, job schedule.Job) (ionogram.Summary, error) {
	tx := job.Transmission
	if filter.Ignore(&tx, r.Filters) {
		glog.V(1).Infof("Worker %s: ignoring %s", r.Worker, tx)
		if r.Metrics != nil {
			r.Metrics.Skipped.Inc()
		}
		return ionogram.Summary{}, ErrSkipped
	}
	if err := tx.Validate(); err != nil {
		return ionogram.Summary{}, err
	}

	dc, err := r.NewDownconverter(tx)
	if err != nil {
		return ionogram.Summary{}, fmt.Errorf("unable to set up downconverter: %w", err)
	}
	opts := r.Options
	opts.Deadline = job.Deadline
	rec, err := sounding.Run(ctx, tx, r.Source, dc, opts)
	if err != nil {
		return ionogram.Summary{}, err
	}

	srDec := r.Options.SampleRate / float64(r.Options.Decimation)
	iono, err := ionogram.Build(rec.Samples, tx.ChirpRate, srDec, r.Ionogram)
	if err != nil {
		return ionogram.Summary{}, err
	}
	iono.Start = tx.Start
	iono.SounderID = tx.SounderID
	iono.Channel = tx.Channel
	if r.Writer.SaveRaw {
		iono.Raw = rec.Samples
	}

	path, err := r.Writer.Write(iono)
	if err != nil {
		if r.Metrics != nil {
			r.Metrics.WriteErrors.Inc()
		}
		return ionogram.Summary{}, fmt.Errorf("error writing file: %w", err)
	}
	glog.Infof("Done processed %1.2f s in %1.2f s, speed %1.2f * realtime", rec.Deadline.Seconds(), rec.Processing.Seconds(), rec.Speed())
	r.observe(rec)

	summary := iono.Summary(path)
	summary.Identifier = r.Identifier
	summary.Rank = r.Worker.Rank
	summary.MissingWindows = rec.MissingWindows
	if r.Summaries != nil {
		select {
		case r.Summaries <- summary:
		case <-ctx.Done():
			return summary, ctx.Err()
		}
	}
	return summary, nil
}

func (r *Runner) observe(rec *sounding.Record) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.IonogramsWritten.Inc()
	r.Metrics.MissingWindows.Add(float64(rec.MissingWindows))
	r.Metrics.Processing.Observe(rec.Processing.Seconds())
	r.Metrics.Waiting.Observe(rec.Waiting.Seconds())
	r.Metrics.Speed.Set(rec.Speed())
}
