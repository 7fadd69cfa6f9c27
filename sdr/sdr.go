package sdr

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by a Source when (part of) the requested sample
// range is not present, e.g. it was never recorded or already overwritten.
var ErrUnavailable = errors.New("samples unavailable")

// Source gives random access to a ring-buffered wideband IQ recording.
// Sample indices are absolute: index 0 is the Unix epoch at the recording
// sample rate.
type Source interface {
	// Bounds returns the earliest and latest (exclusive) available sample index.
	Bounds(channel string) (int64, int64, error)
	// Read returns length samples starting at start or ErrUnavailable.
	Read(start int64, length int, channel string) ([]complex64, error)
}

// Block is a contiguous run of captured samples.
type Block struct {
	// Start is the absolute sample index of Samples[0].
	Start   int64
	Samples []complex64
}

type SDR interface {
	Name() string
	Capture(ctx context.Context, opts *Options, blocks chan<- Block) error
}

type Options struct {
	// CenterFreq is the tuning frequency in Hz.
	CenterFreq int64
	// SampleRate in samples per second.
	SampleRate int64
	// BlockSize is the number of complex samples per emitted Block.
	BlockSize int

	// Gains, passed through to the vendor tool when non-zero.
	LNAGain int
	VGAGain int

	// Now is used to anchor the sample index of the first sample.
	// Defaults to time.Now.
	Now func() time.Time
}

// StartIndex returns the absolute sample index of a sample taken at t.
func StartIndex(t time.Time, sampleRate int64) int64 {
	return t.Unix()*sampleRate + int64(t.Nanosecond())*sampleRate/int64(time.Second)
}
