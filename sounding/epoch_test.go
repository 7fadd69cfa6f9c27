package sounding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIndexTime(t *testing.T) {
	const sr = 25e6
	idx := int64(1700000000)*25000000 + 1
	got := IndexTime(idx, sr)
	assert.Equal(t, int64(1700000000), got.Unix())
	assert.Equal(t, 40, got.Nanosecond())
	assert.Equal(t, idx, TimeIndex(got, sr))
}

func TestTimeIndexFloors(t *testing.T) {
	assert.Equal(t, int64(1), TimeIndex(time.Unix(0, 999999999), 2))
	assert.Equal(t, int64(-1), TimeIndex(time.Unix(-1, 999999999), 2))
}

func TestRatTimeNegative(t *testing.T) {
	got := RatTime(Rat(-0.5))
	assert.Equal(t, int64(-1), got.Unix())
	assert.Equal(t, 500000000, got.Nanosecond())
}

func TestSecondsTime(t *testing.T) {
	got := SecondsTime(1600000000.25)
	assert.Equal(t, time.Unix(1600000000, 250000000).UTC(), got)
	assert.Equal(t, 1600000000.25, Seconds(got))
}
