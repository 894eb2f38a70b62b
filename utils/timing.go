package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for the phases of a TCAV run.
type TimingStats struct {
	TotalTime       time.Duration `json:"total" yaml:"total"`
	DataLoadingTime time.Duration `json:"data_loading" yaml:"data_loading"`
	HEInitTime      time.Duration `json:"he_init" yaml:"he_init"`
	SplitTime       time.Duration `json:"split" yaml:"split"`
	FeatureTime     time.Duration `json:"features" yaml:"features"`
	ProbeTime       time.Duration `json:"probe" yaml:"probe"`
	EncryptionTime  time.Duration `json:"encryption" yaml:"encryption"`
	ScoringTime     time.Duration `json:"scoring" yaml:"scoring"`

	// Examples is the number of sensitivities evaluated while scoring.
	Examples int `json:"examples" yaml:"examples"`
}

// Add accumulates other into s.
func (s *TimingStats) Add(other TimingStats) {
	s.TotalTime += other.TotalTime
	s.DataLoadingTime += other.DataLoadingTime
	s.HEInitTime += other.HEInitTime
	s.SplitTime += other.SplitTime
	s.FeatureTime += other.FeatureTime
	s.ProbeTime += other.ProbeTime
	s.EncryptionTime += other.EncryptionTime
	s.ScoringTime += other.ScoringTime
	s.Examples += other.Examples
}

// Throughput is scored examples per second, or 0 when nothing was scored.
func (s *TimingStats) Throughput() float64 {
	if s.ScoringTime <= 0 {
		return 0
	}
	return float64(s.Examples) / s.ScoringTime.Seconds()
}

func percent(part, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats) {
	if !Verbose {
		return
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintln(Output, "\nBreakdown by phase:")
	for _, row := range []struct {
		name string
		d    time.Duration
	}{
		{"Data loading", stats.DataLoadingTime},
		{"HE initialization", stats.HEInitTime},
		{"Split", stats.SplitTime},
		{"Concept features", stats.FeatureTime},
		{"Probe training", stats.ProbeTime},
		{"CAV encryption", stats.EncryptionTime},
		{"Scoring", stats.ScoringTime},
	} {
		fmt.Fprintf(Output, "  %s: %v (%.1f%%)\n", row.name, row.d, percent(row.d, stats.TotalTime))
	}
	fmt.Fprintln(Output, "\nPerformance metrics:")
	fmt.Fprintf(Output, "  Examples scored: %s\n", humanize.Comma(int64(stats.Examples)))
	fmt.Fprintf(Output, "  Throughput: %s examples/s\n", humanize.Comma(int64(stats.Throughput())))
	if stats.Examples > 0 {
		fmt.Fprintf(Output, "  Average time per example: %v\n", stats.ScoringTime/time.Duration(stats.Examples))
	}
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
