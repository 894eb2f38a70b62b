package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationUS(t *testing.T) {
	d := 1234*time.Microsecond + 567*time.Nanosecond
	assert.InDelta(t, 1234.567, DurationUS(d), 0.001)
}

func TestTimingStatsAdd(t *testing.T) {
	a := TimingStats{ProbeTime: time.Second, ScoringTime: 2 * time.Second, Examples: 10}
	a.Add(TimingStats{ProbeTime: time.Second, ScoringTime: 2 * time.Second, Examples: 30, SplitTime: time.Millisecond})
	assert.Equal(t, 2*time.Second, a.ProbeTime)
	assert.Equal(t, time.Millisecond, a.SplitTime)
	assert.Equal(t, 40, a.Examples)
	assert.InDelta(t, 10, a.Throughput(), 1e-9)
	assert.Zero(t, (&TimingStats{Examples: 5}).Throughput())
}

func TestPrintTimingStats(t *testing.T) {
	var buf bytes.Buffer
	oldOut, oldVerbose := Output, Verbose
	t.Cleanup(func() { Output, Verbose = oldOut, oldVerbose })
	Output = &buf

	stats := &TimingStats{TotalTime: 4 * time.Second, ScoringTime: 2 * time.Second, Examples: 12000}
	PrintTimingStats(stats)
	out := buf.String()
	assert.Contains(t, out, "Scoring: 2s (50.0%)")
	assert.Contains(t, out, "Examples scored: 12,000")
	assert.Contains(t, out, "Throughput: 6,000 examples/s")

	buf.Reset()
	Verbose = false
	PrintTimingStats(stats)
	assert.Empty(t, buf.String())
}
