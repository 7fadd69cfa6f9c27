package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/ionogram"
)

type CSV struct {
	// Out defaults to stdout.
	Out io.Writer
}

func (c *CSV) Write(ctx context.Context, summaries <-chan ionogram.Summary) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	w := csv.NewWriter(out)
	w.Write([]string{
		"Identifier",
		"Rank",
		"SounderID",
		"Channel",
		"Start",
		"ChirpRate",
		"SampleRate",
		"Freqs",
		"Ranges",
		"MissingWindows",
		"PeakPower",
		"Path",
	})

	for s := range summaries {
		if err := w.Write([]string{
			s.Identifier,
			fmt.Sprintf("%d", s.Rank),
			fmt.Sprintf("%d", s.SounderID),
			s.Channel,
			s.Start.UTC().Format(time.RFC3339Nano),
			fmt.Sprintf("%f", s.ChirpRate),
			fmt.Sprintf("%f", s.SampleRate),
			fmt.Sprintf("%d", s.Freqs),
			fmt.Sprintf("%d", s.Ranges),
			fmt.Sprintf("%d", s.MissingWindows),
			fmt.Sprintf("%g", s.PeakPower),
			s.Path,
		}); err != nil {
			glog.Warningf("error while writing CSV line: %s\n", err)
		}

		w.Flush()
		if err := w.Error(); err != nil {
			glog.Warningf("error flushing CSV: %s\n", err)
		}
	}
	w.Flush()
	return w.Error()
}
