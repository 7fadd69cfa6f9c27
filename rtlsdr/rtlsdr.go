package rtlsdr

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/sdr"
)

const (
	SourceName    = "rtlsdr"
	transferAlias = "rtl_sdr"
)

type SDR struct {
	Identifier string
}

func (s SDR) Name() string {
	return SourceName
}

// String names the source instance in logs and errors.
func (s SDR) String() string {
	if s.Identifier == "" {
		return SourceName
	}
	return SourceName + "/" + s.Identifier
}

func (s *SDR) args(opts *sdr.Options) []string {
	args := []string{
		"-f", strconv.FormatInt(opts.CenterFreq, 10),
		"-s", strconv.FormatInt(opts.SampleRate, 10),
	}
	if opts.LNAGain > 0 {
		args = append(args, "-g", strconv.Itoa(opts.LNAGain))
	}
	return append(args, "-") // dumps samples to stdout
}

func (s *SDR) Capture(ctx context.Context, opts *sdr.Options, blocks chan<- sdr.Block) error {
	cmd := exec.CommandContext(ctx, transferAlias, s.args(opts)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	glog.Infof("Running RTL SDR capture for %s: %q\n", s, cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: unable to start capture: %w", s, err)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	err = sdr.ReadBlocks(ctx, out, sdr.StartIndex(now(), opts.SampleRate), opts.BlockSize, Convert, blocks)
	if werr := cmd.Wait(); err == nil && ctx.Err() == nil {
		err = werr
	}
	return err
}

// Convert centers unsigned 8 bit IQ pairs at 127.5 and scales them to [-1, 1].
func Convert(dst []complex64, src []byte) {
	for i := range dst {
		dst[i] = complex((float32(src[2*i])-127.5)/127.5, (float32(src[2*i+1])-127.5)/127.5)
	}
}
