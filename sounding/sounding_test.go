package sounding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/chirpsounder/sdr"
)

type readCall struct {
	start  int64
	length int
}

type mockSource struct {
	earliest, latest int64
	// grow is added to latest on every Bounds call.
	grow  int64
	gaps  func(start int64) bool
	reads []readCall
}

func (m *mockSource) Bounds(string) (int64, int64, error) {
	m.latest += m.grow
	return m.earliest, m.latest, nil
}

func (m *mockSource) Read(start int64, length int, channel string) ([]complex64, error) {
	m.reads = append(m.reads, readCall{start, length})
	if m.gaps != nil && m.gaps(start) {
		return nil, fmt.Errorf("gap at %d: %w", start, sdr.ErrUnavailable)
	}
	out := make([]complex64, length)
	for i := range out {
		out[i] = 1
	}
	return out, nil
}

type mockDownconverter struct {
	tail     int
	consumed int
	advanced []int64
}

func (m *mockDownconverter) Consume(raw []complex64, out []complex64) error {
	m.consumed++
	for i := range out {
		out[i] = complex(float32(m.consumed), 1)
	}
	return nil
}

func (m *mockDownconverter) AdvanceTime(n int64) { m.advanced = append(m.advanced, n) }

func (m *mockDownconverter) FilterTail() int { return m.tail }

func TestWindowCount(t *testing.T) {
	tt := []struct {
		name       string
		duration   float64
		sampleRate float64
		decimation int
		step       int
		expected   int
	}{
		// 12.5 kHz / 160 kHz/s = 0.078125 s; 3906.25 samples / 2.5e6 per window.
		{"short sweep", Duration(12500, 160000), 50000, 2500, 1000, 1},
		{"exact multiple", 1, 25e6, 2500, 1000, 11},
		{"fraction", 2.55, 1e6, 100, 1000, 26},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, WindowCount(tc.duration, tc.sampleRate, tc.decimation, tc.step))
		})
	}
	assert.InDelta(t, 0.078125, Duration(12500, 160000), 1e-12)
	assert.InDelta(t, 0.078125, Duration(12500, -160000), 1e-12)
}

func testOptions() Options {
	return Options{
		SampleRate:           1000,
		Decimation:           10,
		Step:                 4,
		MaxAnalysisFrequency: 100,
		Sleep:                func(context.Context, time.Duration) error { return nil },
	}
}

func testTransmission() Transmission {
	return Transmission{StartIndex: 5000, ChirpRate: 50, Channel: "ch0"}
}

func TestRunReadsConsecutiveWindows(t *testing.T) {
	src := &mockSource{}
	dc := &mockDownconverter{tail: 7}

	rec, err := Run(context.Background(), testTransmission(), src, dc, testOptions())
	require.NoError(t, err)

	// 2 s sweep, 2000 samples, 40 raw samples per window.
	assert.Equal(t, 51, rec.Windows)
	assert.Len(t, rec.Samples, 51*4)
	assert.Equal(t, 0, rec.MissingWindows)
	assert.Equal(t, 2*time.Second, rec.Deadline)
	require.Len(t, src.reads, 51)
	for i, r := range src.reads {
		assert.Equal(t, readCall{5000 + int64(i)*40, 47}, r)
	}
	assert.Empty(t, dc.advanced)
	assert.Equal(t, complex64(complex(51, 1)), rec.Samples[len(rec.Samples)-1])
}

func TestRunAllGapsProducesZeros(t *testing.T) {
	src := &mockSource{gaps: func(int64) bool { return true }}
	dc := &mockDownconverter{tail: 7}

	rec, err := Run(context.Background(), testTransmission(), src, dc, testOptions())
	require.NoError(t, err)

	assert.Equal(t, rec.Windows, rec.MissingWindows)
	assert.Equal(t, 0, dc.consumed)
	assert.Len(t, dc.advanced, rec.Windows)
	for _, n := range dc.advanced {
		assert.Equal(t, int64(40), n)
	}
	for _, v := range rec.Samples {
		assert.Equal(t, complex64(0), v)
	}
}

func TestRunPartialGap(t *testing.T) {
	src := &mockSource{gaps: func(start int64) bool { return start == 5040 }}
	dc := &mockDownconverter{tail: 7}

	rec, err := Run(context.Background(), testTransmission(), src, dc, testOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.MissingWindows)
	assert.Equal(t, []int64{40}, dc.advanced)
	assert.Equal(t, []complex64{1 + 1i, 1 + 1i, 1 + 1i, 1 + 1i}, rec.Samples[0:4])
	assert.Equal(t, []complex64{0, 0, 0, 0}, rec.Samples[4:8])
	assert.Equal(t, []complex64{2 + 1i, 2 + 1i, 2 + 1i, 2 + 1i}, rec.Samples[8:12])
}

func TestRunWaitsForLiveSource(t *testing.T) {
	src := &mockSource{latest: 5000, grow: 10}
	dc := &mockDownconverter{tail: 7}
	opts := testOptions()
	opts.Realtime = true
	opts.MaxAnalysisFrequency = 10 // 0.2 s, 6 windows
	sleeps := 0
	opts.Sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := Run(context.Background(), testTransmission(), src, dc, opts)
	require.NoError(t, err)

	// The last window ends at 5000+5*40+47 and needs a second (1000 samples)
	// of read ahead on top.
	assert.GreaterOrEqual(t, src.latest, int64(5000+5*40+47+1000))
	assert.Less(t, src.latest, int64(5000+5*40+47+1000+10+1))
	assert.Positive(t, sleeps)
}

func TestRunCancelledWhileWaiting(t *testing.T) {
	src := &mockSource{latest: 0}
	dc := &mockDownconverter{tail: 7}
	opts := testOptions()
	opts.Realtime = true
	ctx, cancel := context.WithCancel(context.Background())
	opts.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := Run(ctx, testTransmission(), src, dc, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransmissionValidate(t *testing.T) {
	assert.Error(t, Transmission{}.Validate())
	assert.NoError(t, Transmission{ChirpRate: -100e3}.Validate())
}
