package calc

import (
	"testing"
	"time"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name        string
		done, total int64
		want        int
	}{
		{"total_zero", 10, 0, 0},
		{"zero_done", 0, 100, 0},
		{"half", 50, 100, 50},
		{"one_third", 1, 3, 33},
		{"two_thirds", 2, 3, 67},
		{"exact_100", 100, 100, 100},
		{"over_100", 150, 100, 150},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Progress(tc.done, tc.total); got != tc.want {
				t.Fatalf("Progress(%d, %d) = %d; want %d", tc.done, tc.total, got, tc.want)
			}
		})
	}
}

func TestBatchProgress(t *testing.T) {
	tests := []struct {
		name                      string
		index, count, itemPercent int
		want                      int
	}{
		{"no_items", 0, 0, 50, 0},
		{"first_half", 0, 2, 50, 25},
		{"second_start", 1, 2, 0, 50},
		{"last_done", 3, 4, 100, 100},
		{"clamped_item", 0, 1, 150, 100},
		{"negative_item", 1, 4, -10, 25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := BatchProgress(tc.index, tc.count, tc.itemPercent); got != tc.want {
				t.Fatalf("BatchProgress(%d, %d, %d) = %d; want %d", tc.index, tc.count, tc.itemPercent, got, tc.want)
			}
		})
	}
}

func approxEqual(a, b, tol time.Duration) bool {
	if a < b {
		return b-a <= tol
	}

	return a-b <= tol
}

func TestETA(t *testing.T) {
	tests := []struct {
		name        string
		done, total int64
		elapsed     time.Duration
	}{
		{"total_zero", 10, 0, time.Second},
		{"done_zero", 0, 100, time.Second},
		{"half", 50, 100, 2 * time.Second},
		{"quarter", 25, 100, 4 * time.Second},
	}

	const tolerance = 50 * time.Millisecond

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			started := time.Now().Add(-tc.elapsed)
			got := ETA(tc.done, tc.total, started)

			if tc.total == 0 || tc.done == 0 {
				if got != 0 {
					t.Fatalf("expected 0, got %v", got)
				}

				return
			}

			expected := time.Duration(float64(tc.elapsed) * (float64(tc.total)/float64(tc.done) - 1))
			if !approxEqual(got, expected, tolerance) {
				t.Fatalf("ETA(%d, %d) = %v; want approx %v", tc.done, tc.total, got, expected)
			}
		})
	}
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		successful, total int
		want              float64
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 5, 0},
		{5, 5, 100},
		{1, 3, 33.3},
		{2, 3, 66.7},
	}

	for _, tc := range tests {
		if got := SuccessRate(tc.successful, tc.total); got != tc.want {
			t.Errorf("SuccessRate(%d, %d) = %v; want %v", tc.successful, tc.total, got, tc.want)
		}
	}
}
