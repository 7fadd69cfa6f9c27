package hackrf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hb9tf/chirpsounder/sdr"
)

func TestConvert(t *testing.T) {
	dst := make([]complex64, 3)
	Convert(dst, []byte{0x00, 0x7f, 0x80, 0xff, 0x40, 0xc0})
	assert.Equal(t, []complex64{
		complex(0, 127.0/128),
		complex(-1, -1.0/128),
		complex(0.5, -0.5),
	}, dst)
}

func TestArgs(t *testing.T) {
	tt := []struct {
		name     string
		opts     sdr.Options
		expected []string
	}{
		{
			name:     "defaults",
			opts:     sdr.Options{CenterFreq: 12500000, SampleRate: 25000000},
			expected: []string{"-r", "-", "-f", "12500000", "-s", "25000000"},
		},
		{
			name:     "gains",
			opts:     sdr.Options{CenterFreq: 5000000, SampleRate: 10000000, LNAGain: 16, VGAGain: 20},
			expected: []string{"-r", "-", "-f", "5000000", "-s", "10000000", "-l", "16", "-g", "20"},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			s := &SDR{}
			assert.Equal(t, tc.expected, s.args(&tc.opts))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, SourceName, SDR{}.String())
	assert.Equal(t, SourceName+"/roof-1", SDR{Identifier: "roof-1"}.String())
	assert.Equal(t, SourceName+"/roof-1", (&SDR{Identifier: "roof-1"}).String())
}
