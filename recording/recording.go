// Package recording stores a wideband IQ stream as a ring buffer of fixed
// size files and gives random access to it by absolute sample index.
//
// Every channel lives in its own directory. A file named rf@<index>.cf32
// holds little-endian complex64 samples starting at <index>, which is always
// a multiple of the file size in samples.
package recording

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/sdr"
)

const (
	filePrefix     = "rf@"
	fileSuffix     = ".cf32"
	bytesPerSample = 8

	DefaultFileSamples = 1 << 20
)

func fileName(start int64) string {
	return fmt.Sprintf("%s%d%s", filePrefix, start, fileSuffix)
}

func parseFileName(name string) (int64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	idx, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
	if err != nil {
		return 0, false
	}
	return idx, true
}

type segment struct {
	start int64
	name  string
}

func listSegments(dir string) ([]segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var segments []segment
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if idx, ok := parseFileName(e.Name()); ok {
			segments = append(segments, segment{start: idx, name: e.Name()})
		}
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].start < segments[j].start })
	return segments, nil
}

// Reader implements sdr.Source on top of a recording directory.
type Reader struct {
	Dir         string
	FileSamples int64
}

func (r *Reader) channelDir(channel string) string {
	return filepath.Join(r.Dir, channel)
}

func (r *Reader) fileSamples() int64 {
	if r.FileSamples > 0 {
		return r.FileSamples
	}
	return DefaultFileSamples
}

func (r *Reader) Bounds(channel string) (int64, int64, error) {
	segments, err := listSegments(r.channelDir(channel))
	if err != nil {
		return 0, 0, fmt.Errorf("unable to list recording for channel %q: %w", channel, err)
	}
	if len(segments) == 0 {
		return 0, 0, fmt.Errorf("recording for channel %q is empty: %w", channel, sdr.ErrUnavailable)
	}
	last := segments[len(segments)-1]
	info, err := os.Stat(filepath.Join(r.channelDir(channel), last.name))
	if err != nil {
		return 0, 0, fmt.Errorf("unable to stat %q: %w", last.name, err)
	}
	return segments[0].start, last.start + info.Size()/bytesPerSample, nil
}

func (r *Reader) Read(start int64, length int, channel string) ([]complex64, error) {
	if start < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range [%d, +%d): %w", start, length, sdr.ErrUnavailable)
	}
	fs := r.fileSamples()
	out := make([]complex64, length)
	end := start + int64(length)
	for pos := start; pos < end; {
		fileStart := pos - pos%fs
		n := min(end, fileStart+fs) - pos
		if err := r.readSegment(channel, fileStart, pos-fileStart, out[pos-start:pos-start+n]); err != nil {
			return nil, err
		}
		pos += n
	}
	return out, nil
}

func (r *Reader) readSegment(channel string, fileStart, offset int64, dst []complex64) error {
	f, err := os.Open(filepath.Join(r.channelDir(channel), fileName(fileStart)))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no file for sample %d: %w", fileStart+offset, sdr.ErrUnavailable)
		}
		return err
	}
	defer f.Close()

	buf := make([]byte, len(dst)*bytesPerSample)
	n, err := f.ReadAt(buf, offset*bytesPerSample)
	if n < len(buf) {
		return fmt.Errorf("short file %q (%v): %w", f.Name(), err, sdr.ErrUnavailable)
	}
	decode(buf, dst)
	return nil
}

func decode(buf []byte, dst []complex64) {
	for i := range dst {
		re := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*bytesPerSample:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*bytesPerSample+4:]))
		dst[i] = complex(re, im)
	}
}

func encode(src []complex64, buf []byte) {
	for i, s := range src {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample+4:], math.Float32bits(imag(s)))
	}
}

// Writer appends captured blocks to a recording directory, publishing one
// file at a time and deleting the oldest files beyond Retain.
type Writer struct {
	Dir         string
	Channel     string
	FileSamples int64
	// Retain is the number of files kept on disk. Zero keeps everything.
	Retain int

	pending      []complex64
	pendingStart int64
}

func (w *Writer) fileSamples() int64 {
	if w.FileSamples > 0 {
		return w.FileSamples
	}
	return DefaultFileSamples
}

func (w *Writer) channelDir() string {
	return filepath.Join(w.Dir, w.Channel)
}

// Write buffers the block and flushes every completed file. Samples before
// the first file boundary and samples following a discontinuity up to the
// next boundary are dropped so that files always stay aligned.
func (w *Writer) Write(block sdr.Block) error {
	fs := w.fileSamples()
	samples := block.Samples
	start := block.Start

	if len(w.pending) > 0 && start != w.pendingStart+int64(len(w.pending)) {
		glog.Warningf("discontinuity in capture at sample %d (expected %d), dropping %d pending samples\n", start, w.pendingStart+int64(len(w.pending)), len(w.pending))
		w.pending = w.pending[:0]
	}
	if len(w.pending) == 0 {
		skip := (fs - start%fs) % fs
		if skip >= int64(len(samples)) {
			return nil
		}
		samples = samples[skip:]
		start += skip
		w.pendingStart = start
	}

	for len(samples) > 0 {
		n := min(int64(len(samples)), fs-int64(len(w.pending)))
		w.pending = append(w.pending, samples[:n]...)
		samples = samples[n:]
		if int64(len(w.pending)) == fs {
			if err := w.publish(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) publish() error {
	if err := os.MkdirAll(w.channelDir(), 0o755); err != nil {
		return fmt.Errorf("unable to create recording directory: %w", err)
	}
	buf := make([]byte, len(w.pending)*bytesPerSample)
	encode(w.pending, buf)

	name := filepath.Join(w.channelDir(), fileName(w.pendingStart))
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("unable to write %q: %w", tmp, err)
	}
	// Readers only ever see complete files.
	if err := os.Rename(tmp, name); err != nil {
		return fmt.Errorf("unable to publish %q: %w", name, err)
	}
	glog.V(2).Infof("published %s", name)

	w.pendingStart += int64(len(w.pending))
	w.pending = w.pending[:0]
	if w.Retain > 0 {
		return w.prune()
	}
	return nil
}

func (w *Writer) prune() error {
	segments, err := listSegments(w.channelDir())
	if err != nil {
		return err
	}
	for len(segments) > w.Retain {
		if err := os.Remove(filepath.Join(w.channelDir(), segments[0].name)); err != nil && !os.IsNotExist(err) {
			return err
		}
		segments = segments[1:]
	}
	return nil
}
