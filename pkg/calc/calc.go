// Package calc holds progress and rate arithmetic shared by the job pipeline.
package calc

import (
	"math"
	"time"
)

// Progress calculates the percentage for a given pair of numbers.
func Progress(done, total int64) int {
	if total > 0 {
		return int(math.Round(float64(done) / float64(total) * 100))
	}

	return 0
}

// BatchProgress maps the progress of the current item onto the whole batch.
// index is zero-based, itemPercent is 0..100.
func BatchProgress(index, count, itemPercent int) int {
	if count <= 0 {
		return 0
	}

	itemPercent = min(max(itemPercent, 0), 100)
	done := float64(index)*100 + float64(itemPercent)

	return min(int(math.Round(done/float64(count))), 100)
}

// ETA calculates the estimated time of arrival.
func ETA(done, total int64, started time.Time) time.Duration {
	if total > 0 && done > 0 {
		elapsed := time.Since(started)

		return time.Duration(float64(elapsed) * (float64(total)/float64(done) - 1))
	}

	return 0
}

// SuccessRate returns successful/total as a percentage rounded to one decimal.
// Zero total yields zero.
func SuccessRate(successful, total int) float64 {
	if total <= 0 {
		return 0
	}

	return math.Round(float64(successful)/float64(total)*1000) / 10
}
