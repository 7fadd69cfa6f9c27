// The recorder captures samples from an SDR into the on-disk ring buffer read
// by the analysis workers.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hb9tf/chirpsounder/config"
	"github.com/hb9tf/chirpsounder/hackrf"
	"github.com/hb9tf/chirpsounder/recording"
	"github.com/hb9tf/chirpsounder/rtlsdr"
	"github.com/hb9tf/chirpsounder/sdr"
)

// Flags
var (
	configFile = flag.String("config", "chirp.toml", "Path of the TOML configuration file.")
	identifier = flag.String("id", "", "unique identifier of source instance (defaults to a random UUID)")
	sdrType    = flag.String("sdr", "", "SDR to use (one of: hackrf, rtlsdr)")
	blockSize  = flag.Int("blockSize", 1<<16, "Number of samples handed from the SDR to the recording at once.")
	lnaGain    = flag.Int("lnaGain", 0, "LNA gain in dB (hackrf) or tuner gain in dB (rtlsdr), 0 keeps the tool default.")
	vgaGain    = flag.Int("vgaGain", 0, "VGA gain in dB (hackrf only), 0 keeps the tool default.")
)

func newSDR(name string) (sdr.SDR, error) {
	switch strings.ToLower(name) {
	case hackrf.SourceName:
		return &hackrf.SDR{Identifier: *identifier}, nil
	case rtlsdr.SourceName:
		return &rtlsdr.SDR{Identifier: *identifier}, nil
	}
	return nil, errors.New("unsupported SDR type, pick one of: hackrf, rtlsdr")
}

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *identifier == "" {
		*identifier = uuid.NewString()
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		glog.Exitf("unable to load configuration: %s", err)
	}
	if cfg.DataDir == "" {
		glog.Exit("data_dir is required to record")
	}

	radio, err := newSDR(*sdrType)
	if err != nil {
		glog.Exitf("%q: %s", *sdrType, err)
	}
	opts := &sdr.Options{
		CenterFreq: int64(cfg.CenterFreq),
		SampleRate: int64(cfg.SampleRate),
		BlockSize:  *blockSize,
		LNAGain:    *lnaGain,
		VGAGain:    *vgaGain,
	}
	rec := &recording.Writer{
		Dir:         cfg.DataDir,
		Channel:     cfg.Channel,
		FileSamples: int64(cfg.FileSamples),
		Retain:      cfg.RetainFiles,
	}

	// Run
	blocks := make(chan sdr.Block, 16)
	captured := make(chan error, 1)
	go func() {
		defer close(blocks)
		captured <- radio.Capture(ctx, opts, blocks)
	}()

	glog.Infof("Recording %s (%s) at %d Hz into %s", radio.Name(), *identifier, opts.SampleRate, cfg.DataDir)
	for block := range blocks {
		if err := rec.Write(block); err != nil {
			glog.Errorf("unable to record block at %d: %s", block.Start, err)
			stop()
		}
	}
	if err := <-captured; err != nil && !errors.Is(err, context.Canceled) {
		glog.Error(err)
	}

	glog.Flush()
}
