package estimator

import (
	"math"
	"testing"
	"time"
)

func floatPtr(f float64) *float64 { return &f }

// TestEpleySingleIsIdentity verifies that a true single needs no
// extrapolation: epley(w, 1) == w for any weight.
func TestEpleySingleIsIdentity(t *testing.T) {
	for _, w := range []float64{45, 135, 102.5, 405} {
		if got := Epley1RM(w, 1); got != w {
			t.Errorf("Epley1RM(%.1f, 1) = %.2f, want %.1f", w, got, w)
		}
	}
}

// TestEpleyMonotonic verifies strict monotonicity in reps (up to the
// 10-rep cap) and in weight.
func TestEpleyMonotonic(t *testing.T) {
	prev := Epley1RM(200, 1)
	for reps := 2; reps <= 10; reps++ {
		cur := Epley1RM(200, reps)
		if cur <= prev {
			t.Errorf("Epley1RM(200, %d) = %.2f, not greater than %.2f", reps, cur, prev)
		}
		prev = cur
	}

	// Past the cap, the estimate stops growing.
	if got := Epley1RM(200, 15); got != Epley1RM(200, 10) {
		t.Errorf("Epley1RM(200, 15) = %.2f, want capped value %.2f", got, Epley1RM(200, 10))
	}

	if Epley1RM(205, 5) <= Epley1RM(200, 5) {
		t.Error("Epley1RM not increasing in weight at fixed reps")
	}
}

// TestTrainingMaxBranches covers the rep-threshold branching that avoids
// the double-discount bug.
func TestTrainingMaxBranches(t *testing.T) {
	tests := []struct {
		name      string
		sample    Sample
		wantOneRM float64
		wantTRM   float64
	}{
		{
			// 135 * (1 + 10/30) = 180; training set, no RPE, round nearest 5.
			name:      "training set no rpe",
			sample:    Sample{Weight: 135, Reps: 10},
			wantOneRM: 180,
			wantTRM:   180,
		},
		{
			// 185 * 1.1 = 203.5; training set, round nearest 5.
			name:      "training set triple",
			sample:    Sample{Weight: 185, Reps: 3},
			wantOneRM: 203.5,
			wantTRM:   205,
		},
		{
			// Near-max double: 1RM = 225 * (1 + 2/30) = 240; TRM = down5(240 * 0.9) = 215.
			name:      "near-max double",
			sample:    Sample{Weight: 225, Reps: 2},
			wantOneRM: 240,
			wantTRM:   215,
		},
		{
			// True single: 1RM = 315; TRM = down5(283.5) = 280.
			name:      "true single",
			sample:    Sample{Weight: 315, Reps: 1},
			wantOneRM: 315,
			wantTRM:   280,
		},
		{
			// RPE 9 discount: 200 * (1 + 5/30) = 233.33; * 0.96 = 224, nearest 5 = 225.
			name:      "rpe 9 discount",
			sample:    Sample{Weight: 200, Reps: 5, RPE: floatPtr(9)},
			wantOneRM: 200 * (1 + 5.0/30),
			wantTRM:   225,
		},
		{
			// RPE 10 means no discount at all: multiplier is exactly 1.0.
			name:      "rpe 10 no discount",
			sample:    Sample{Weight: 200, Reps: 5, RPE: floatPtr(10)},
			wantOneRM: 200 * (1 + 5.0/30),
			wantTRM:   235,
		},
		{
			// RPE 9.5 interpolates: multiplier 0.98; 233.33 * 0.98 = 228.67, nearest 5 = 230.
			name:      "rpe 9.5 interpolated",
			sample:    Sample{Weight: 200, Reps: 5, RPE: floatPtr(9.5)},
			wantOneRM: 200 * (1 + 5.0/30),
			wantTRM:   230,
		},
		{
			// RPE below 9 applies no discount.
			name:      "rpe 8 untouched",
			sample:    Sample{Weight: 200, Reps: 5, RPE: floatPtr(8)},
			wantOneRM: 200 * (1 + 5.0/30),
			wantTRM:   235,
		},
		{
			// Near-max attempts ignore RPE entirely: the 0.90 factor is the
			// whole adjustment.
			name:      "near-max ignores rpe",
			sample:    Sample{Weight: 225, Reps: 2, RPE: floatPtr(10)},
			wantOneRM: 240,
			wantTRM:   215,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oneRM, trm := TrainingMax(tt.sample)
			if math.Abs(oneRM-tt.wantOneRM) > 0.01 {
				t.Errorf("oneRM = %.3f, want %.3f", oneRM, tt.wantOneRM)
			}
			if trm != tt.wantTRM {
				t.Errorf("trm = %.1f, want %.1f", trm, tt.wantTRM)
			}
		})
	}
}

// TestBestSamplePerDay verifies one sample per distinct date, keeping the
// highest training-max value: a heavy triple beats a lighter 10-rep set
// logged the same day.
func TestBestSamplePerDay(t *testing.T) {
	samples := []Sample{
		{Date: "2026-08-01", Weight: 135, Reps: 10}, // TRM 180
		{Date: "2026-08-01", Weight: 185, Reps: 3},  // TRM 205
		{Date: "2026-08-03", Weight: 135, Reps: 5},
	}

	bests := BestSamplePerDay(samples)
	if len(bests) != 2 {
		t.Fatalf("got %d samples, want 2 (one per day)", len(bests))
	}
	if bests[0].Date != "2026-08-01" || bests[0].Weight != 185 {
		t.Errorf("day one best = %.1f on %s, want the 185x3 set", bests[0].Weight, bests[0].Date)
	}
	if bests[1].Date != "2026-08-03" {
		t.Errorf("second day = %s, want 2026-08-03", bests[1].Date)
	}
}

// TestBestSamplePerDayUniqueDates is the invariant check: never more than
// one sample per distinct date key.
func TestBestSamplePerDayUniqueDates(t *testing.T) {
	var samples []Sample
	for i := 0; i < 5; i++ {
		samples = append(samples,
			Sample{Date: "2026-08-01", Weight: 100 + float64(i), Reps: 5},
			Sample{Date: "2026-08-02", Weight: 120 + float64(i), Reps: 5},
		)
	}
	bests := BestSamplePerDay(samples)
	seen := map[string]bool{}
	for _, s := range bests {
		if seen[s.Date] {
			t.Fatalf("date %s appears more than once", s.Date)
		}
		seen[s.Date] = true
	}
}

// TestTimeWeightedAverage verifies recency weighting and rounding.
func TestTimeWeightedAverage(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.Local)

	if got := TimeWeightedAverage(nil, now); got != 0 {
		t.Errorf("empty input = %.1f, want 0", got)
	}

	// A single day's sample is just its own TRM.
	one := []Sample{{Date: "2026-08-14", Weight: 135, Reps: 10}}
	if got := TimeWeightedAverage(one, now); got != 180 {
		t.Errorf("single sample = %.1f, want 180", got)
	}

	// A recent heavy day must dominate an old light day: the result lands
	// closer to the recent TRM than the plain mean would.
	mixed := []Sample{
		{Date: "2026-05-01", Weight: 135, Reps: 5}, // old, TRM 160
		{Date: "2026-08-14", Weight: 185, Reps: 5}, // recent, TRM 215
	}
	got := TimeWeightedAverage(mixed, now)
	if got <= 185 {
		t.Errorf("recency-weighted = %.1f, want > plain mean territory (185)", got)
	}
	if got > 215 {
		t.Errorf("recency-weighted = %.1f, cannot exceed best TRM 215", got)
	}
	if math.Mod(got, 5) != 0 {
		t.Errorf("result %.2f not rounded down to nearest 5", got)
	}
}

// TestIsStale covers the 30-day threshold scenarios.
func TestIsStale(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		last string
		want bool
	}{
		{"45 days ago", "2026-07-01", true},
		{"10 days ago", "2026-08-05", false},
		{"today", "2026-08-15", false},
		{"never performed", "", true},
		{"garbage date", "not-a-date", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStale(tt.last, now); got != tt.want {
				t.Errorf("IsStale(%q) = %v, want %v", tt.last, got, tt.want)
			}
		})
	}
}

// TestTrend verifies the direction calls, including the distinction between
// "no trend" (one sampled day) and "stable".
func TestTrend(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    Trend
	}{
		{
			name:    "no samples",
			samples: nil,
			want:    TrendNone,
		},
		{
			// One distinct day, even with multiple sets, is not a trend.
			name: "single day is none not stable",
			samples: []Sample{
				{Date: "2026-08-01", Weight: 135, Reps: 5},
				{Date: "2026-08-01", Weight: 155, Reps: 3},
			},
			want: TrendNone,
		},
		{
			name: "rising",
			samples: []Sample{
				{Date: "2026-08-01", Weight: 135, Reps: 5},
				{Date: "2026-08-08", Weight: 155, Reps: 5},
			},
			want: TrendUp,
		},
		{
			name: "falling",
			samples: []Sample{
				{Date: "2026-08-01", Weight: 185, Reps: 5},
				{Date: "2026-08-08", Weight: 135, Reps: 5},
			},
			want: TrendDown,
		},
		{
			name: "flat",
			samples: []Sample{
				{Date: "2026-08-01", Weight: 185, Reps: 5},
				{Date: "2026-08-08", Weight: 185, Reps: 5},
			},
			want: TrendStable,
		},
		{
			// Only the four days preceding the latest feed the baseline; the
			// ancient light day must not drag the mean down.
			name: "window limited to four prior days",
			samples: []Sample{
				{Date: "2026-01-01", Weight: 95, Reps: 5},
				{Date: "2026-08-01", Weight: 185, Reps: 5},
				{Date: "2026-08-03", Weight: 185, Reps: 5},
				{Date: "2026-08-05", Weight: 185, Reps: 5},
				{Date: "2026-08-08", Weight: 185, Reps: 5},
				{Date: "2026-08-10", Weight: 185, Reps: 5},
			},
			want: TrendStable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrendOf(tt.samples); got != tt.want {
				t.Errorf("TrendOf = %q, want %q", got, tt.want)
			}
		})
	}
}
