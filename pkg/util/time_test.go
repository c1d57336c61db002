package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "00:00:00.000", FormatSeconds(0))
	assert.Equal(t, "00:00:07.000", FormatSeconds(7))
	assert.Equal(t, "00:01:30.500", FormatSeconds(90.5))
	assert.Equal(t, "01:00:01.250", FormatSeconds(3601.25))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:02:03.000", FormatDuration(2*time.Minute+3*time.Second))
}

func TestParseTimestamp(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want float64
	}{
		{"45.5", 45.5},
		{"01:30", 90},
		{"00:00:04.000000", 4},
		{"01:02:03.5", 3723.5},
		{" 00:00:01.000 ", 1},
	} {
		got, err := ParseTimestamp(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, 0.0001, tc.in)
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1:2:3:4", "aa:bb"} {
		_, err := ParseTimestamp(in)
		assert.Error(t, err, in)
	}
}

func TestParseTimestampRoundTripsFormatSeconds(t *testing.T) {
	for _, v := range []float64{0, 0.04, 7, 59.999, 61, 3725.5} {
		got, err := ParseTimestamp(FormatSeconds(v))
		require.NoError(t, err)
		assert.InDelta(t, v, got, 0.001)
	}
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 30.0, ParseFrameRate("30/1"))
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.001)
	assert.Equal(t, 0.0, ParseFrameRate("30"))
	assert.Equal(t, 0.0, ParseFrameRate("30/0"))
}
