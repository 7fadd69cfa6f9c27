// Package schedule decides which transmission a worker analyzes next.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hb9tf/chirpsounder/sounding"
)

// ErrExhausted is returned by policies with a finite amount of work once all
// of it was handed out.
var ErrExhausted = errors.New("no more transmissions")

type Mode int

const (
	Batch Mode = iota
	Analytic
	Opportunistic
)

var modeNames = map[Mode]string{
	Batch:         "batch",
	Analytic:      "analytic",
	Opportunistic: "opportunistic",
}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	for m, n := range modeNames {
		if strings.EqualFold(s, n) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%q is not a supported mode, pick one of: batch, analytic, opportunistic", s)
}

// ModeFor picks the mode the way the configuration flags imply it:
// serendipitous wins over realtime, otherwise the recording is batch scanned.
func ModeFor(realtime, serendipitous bool) Mode {
	switch {
	case serendipitous:
		return Opportunistic
	case realtime:
		return Analytic
	default:
		return Batch
	}
}

// Job is one transmission to analyze.
type Job struct {
	sounding.Transmission
	// Deadline is the expected processing time, zero for the sweep duration.
	Deadline time.Duration
	// ParFile is the parameter file the transmission was read from, if any.
	ParFile string
}

// Policy hands out transmissions one at a time. Next blocks until one is
// available and returns ErrExhausted when there will be no more.
type Policy interface {
	Next(ctx context.Context) (Job, error)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
