package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"20m", 20 * time.Minute},
		{"2d", 48 * time.Hour},
		{"30", 30 * time.Second},
		{" 1h30m ", 90 * time.Minute},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := ParseDuration("xd")
	assert.Error(t, err)
}

func TestDurationOr(t *testing.T) {
	assert.Equal(t, time.Minute, DurationOr("", time.Minute))
	assert.Equal(t, time.Minute, DurationOr("bogus", time.Minute))
	assert.Equal(t, time.Minute, DurationOr("-5s", time.Minute))
	assert.Equal(t, 5*time.Second, DurationOr("5s", time.Minute))
}

func TestNowUTCMilli(t *testing.T) {
	now := NowUTCMilli()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond))
}
