package hackrf

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
	SourceName    = "hackrf"
	transferAlias = "hackrf_transfer"
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
		"-r", "-", // dumps samples to stdout
		"-f", strconv.FormatInt(opts.CenterFreq, 10),
		"-s", strconv.FormatInt(opts.SampleRate, 10),
	}
	if opts.LNAGain > 0 {
		args = append(args, "-l", strconv.Itoa(opts.LNAGain))
	}
	if opts.VGAGain > 0 {
		args = append(args, "-g", strconv.Itoa(opts.VGAGain))
	}
	return args
}

// Capture streams samples from hackrf_transfer until it exits or ctx is done.
func (s *SDR) Capture(ctx context.Context, opts *sdr.Options, blocks chan<- sdr.Block) error {
	cmd := exec.CommandContext(ctx, transferAlias, s.args(opts)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	glog.Infof("Running HackRF capture for %s: %q\n", s, cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: unable to start capture: %w", s, err)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	start := sdr.StartIndex(now(), opts.SampleRate)

	err = sdr.ReadBlocks(ctx, out, start, opts.BlockSize, Convert, blocks)
	if werr := cmd.Wait(); err == nil && ctx.Err() == nil {
		err = werr
	}
	return err
}

// Convert scales signed 8 bit IQ pairs to [-1, 1).
func Convert(dst []complex64, src []byte) {
	for i := range dst {
		dst[i] = complex(float32(int8(src[2*i]))/128, float32(int8(src[2*i+1]))/128)
	}
}
