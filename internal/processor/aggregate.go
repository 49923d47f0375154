package processor

import "time"

// rescaleEpsilon guards the rescale factor against runs where nothing was
// actually measured.
const rescaleEpsilon = 100 * time.Microsecond

// Aggregate folds per-file stats into the run result. Phase durations were
// measured concurrently, so their sum overcounts elapsed time; each phase is
// scaled by wall/sum so the three reported phases add back up to wall.
// The result is a reporting approximation, not a profile.
func Aggregate(stats []FileStats, wall time.Duration, processed uint64, canceled bool) FinalResult {
	res := FinalResult{
		TotalFiles:     uint64(len(stats)),
		ProcessedFiles: processed,
		Canceled:       canceled,
		Duration:       wall,
	}

	var sumOpt, sumWebP, sumAVIF time.Duration
	for _, s := range stats {
		res.TotalSaved += s.BytesSaved
		res.TotalOriginal += s.OriginalSize
		res.TotalOptimized += s.OptimizedSize
		res.TotalWebP += s.WebPSize
		res.TotalAVIF += s.AVIFSize

		sumOpt += s.OptimizeDuration
		sumWebP += s.WebPDuration
		sumAVIF += s.AVIFDuration
	}

	factor := 0.0
	if measured := sumOpt + sumWebP + sumAVIF; measured > rescaleEpsilon {
		factor = float64(wall) / float64(measured)
	}

	res.OptimizeDuration = scale(sumOpt, factor)
	res.WebPDuration = scale(sumWebP, factor)
	res.AVIFDuration = scale(sumAVIF, factor)
	return res
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

func savedBytes(original, optimized int64) int64 {
	if original > optimized {
		return original - optimized
	}
	return 0
}
