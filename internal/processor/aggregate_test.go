package processor

import (
	"testing"
	"time"
)

func TestAggregateRescalesPhasesOntoWallClock(t *testing.T) {
	stats := []FileStats{
		{OriginalSize: 100, OptimizedSize: 60, BytesSaved: 40, WebPSize: 30, OptimizeDuration: 3 * time.Second, WebPDuration: time.Second},
		{OriginalSize: 50, OptimizedSize: 50, AVIFSize: 20, OptimizeDuration: 2 * time.Second, AVIFDuration: 2 * time.Second},
	}

	res := Aggregate(stats, 4*time.Second, 2, false)

	if res.TotalFiles != 2 || res.ProcessedFiles != 2 || res.Canceled {
		t.Fatalf("counts: %+v", res)
	}
	if res.TotalOriginal != 150 || res.TotalOptimized != 110 || res.TotalSaved != 40 {
		t.Fatalf("sizes: %+v", res)
	}
	if res.TotalWebP != 30 || res.TotalAVIF != 20 {
		t.Fatalf("derived sizes: %+v", res)
	}

	// 8s measured over 4s of wall time: factor 0.5.
	if res.OptimizeDuration != 2500*time.Millisecond {
		t.Fatalf("optimize = %v", res.OptimizeDuration)
	}
	if res.WebPDuration != 500*time.Millisecond || res.AVIFDuration != time.Second {
		t.Fatalf("webp = %v avif = %v", res.WebPDuration, res.AVIFDuration)
	}
	if sum := res.OptimizeDuration + res.WebPDuration + res.AVIFDuration; sum != res.Duration {
		t.Fatalf("phases sum to %v, want %v", sum, res.Duration)
	}
}

func TestAggregateZeroFactorWhenNothingMeasured(t *testing.T) {
	stats := []FileStats{{OriginalSize: 10, OptimizeDuration: 10 * time.Microsecond}}
	res := Aggregate(stats, time.Second, 0, true)

	if res.OptimizeDuration != 0 || res.WebPDuration != 0 || res.AVIFDuration != 0 {
		t.Fatalf("expected zeroed phases, got %+v", res)
	}
	if res.Duration != time.Second || !res.Canceled {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate(nil, time.Millisecond, 0, false)
	if res.TotalFiles != 0 || res.TotalSaved != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSavedBytesNeverNegative(t *testing.T) {
	cases := []struct{ orig, opt, want int64 }{
		{100, 60, 40},
		{100, 100, 0},
		{100, 140, 0},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := savedBytes(c.orig, c.opt); got != c.want {
			t.Errorf("savedBytes(%d, %d) = %d, want %d", c.orig, c.opt, got, c.want)
		}
	}
}

func TestReportUsesSeconds(t *testing.T) {
	r := FinalResult{Duration: 1500 * time.Millisecond, OptimizeDuration: time.Second, TotalSaved: 7}.Report()
	if r.DurationTotal != 1.5 || r.DurationOpt != 1 || r.TotalSizeSaved != 7 {
		t.Fatalf("report = %+v", r)
	}
}
