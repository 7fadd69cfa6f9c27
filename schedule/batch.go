package schedule

import (
	"context"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/pool"
)

// BatchPolicy scans all parameter files of a finished recording. Every worker
// processes the files whose position in the sorted list it owns.
type BatchPolicy struct {
	Worker     pool.Worker
	SampleRate float64
	Channel    string

	files []string
	owned []int
}

func NewBatch(outputDir string, w pool.Worker, sampleRate float64, channel string) (*BatchPolicy, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	files, err := ParFiles(outputDir)
	if err != nil {
		return nil, err
	}
	owned := w.Partition(len(files))
	glog.Infof("Worker %s: %d of %d parameter files below %s", w, len(owned), len(files), outputDir)
	return &BatchPolicy{
		Worker:     w,
		SampleRate: sampleRate,
		Channel:    channel,
		files:      files,
		owned:      owned,
	}, nil
}

func (b *BatchPolicy) Next(ctx context.Context) (Job, error) {
	for len(b.owned) > 0 {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		path := b.files[b.owned[0]]
		b.owned = b.owned[1:]
		p, err := ReadParams(path)
		if err != nil {
			glog.Warningf("skipping %s: %s", path, err)
			continue
		}
		tx := p.Transmission(b.SampleRate, b.Channel)
		glog.Infof("calculating %s", tx)
		return Job{Transmission: tx, ParFile: path}, nil
	}
	return Job{}, ErrExhausted
}
