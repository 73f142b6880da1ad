// Package estimator converts logged (weight, reps, effort) samples into a
// recency-weighted one-repetition-maximum estimate and the Training Rep Max
// (TRM) used to prescribe working weights.
package estimator

import (
	"math"
	"sort"
	"time"

	"github.com/meltforce/liftlog/internal/models"
)

const (
	// Epley extrapolation is unreliable past this many reps; cap the input.
	repCap = 10

	// Samples at or below this rep count are near-max attempts: the Epley
	// output is a 1RM and the TRM is derived from it. Above it, the Epley
	// output already approximates the TRM directly; deriving again would
	// double-discount.
	nearMaxReps = 2

	// TRM as a fraction of estimated 1RM for near-max attempts.
	trmFactor = 0.90

	// High-effort discount for training sets: applied only at RPE >= 9,
	// scaling linearly from discountAtRPE9 up to 1.0 at RPE 10.
	highEffortRPE  = 9.0
	discountAtRPE9 = 0.96

	// HalfLifeDays is the recency-decay half-life for averaging.
	HalfLifeDays = 14.0

	// StaleAfterDays marks an estimate stale when no sample is newer.
	// Staleness is a flag, not a decay multiplier.
	StaleAfterDays = 30

	// Trend compares the latest day against up to this many prior days,
	// calling anything within the band stable.
	trendWindow = 4
	trendBand   = 0.02
)

// Sample is one logged set reduced to the fields the estimator needs.
type Sample struct {
	Date   string // calendar day, models.DateLayout
	Weight float64
	Reps   int
	RPE    *float64
}

// Trend is the direction of an exercise's recent training max.
type Trend string

const (
	// TrendNone means fewer than two distinct sampled days exist; there is
	// nothing to compare. Deliberately distinct from TrendStable.
	TrendNone   Trend = ""
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Epley1RM estimates a one-rep max from a sub-maximal set:
// weight * (1 + reps/30), with reps capped at repCap. A true single needs
// no extrapolation and returns the weight unchanged.
func Epley1RM(weight float64, reps int) float64 {
	if reps <= 1 {
		return weight
	}
	if reps > repCap {
		reps = repCap
	}
	return weight * (1 + float64(reps)/30)
}

// TrainingMax returns the estimated 1RM and the TRM for one sample.
//
// Near-max attempts (reps <= nearMaxReps): Epley output is a 1RM estimate
// and the TRM is trmFactor of it, rounded down to the nearest 5.
//
// Training sets (reps >= 3): the Epley output approximates the TRM
// directly. When the set was rated RPE >= 9 a discount multiplier between
// discountAtRPE9 (RPE 9) and 1.0 (RPE 10) is applied, then the result is
// rounded to the nearest 5. The multiplier is always applied by
// multiplication, never division.
func TrainingMax(s Sample) (oneRM, trm float64) {
	oneRM = Epley1RM(s.Weight, s.Reps)

	if s.Reps <= nearMaxReps {
		return oneRM, roundDown5(oneRM * trmFactor)
	}

	trm = oneRM
	if s.RPE != nil && *s.RPE >= highEffortRPE {
		rpe := math.Min(*s.RPE, 10)
		mult := discountAtRPE9 + (rpe-highEffortRPE)*(1-discountAtRPE9)
		trm *= mult
	}
	return oneRM, roundNearest5(trm)
}

// trainingMaxValue is the comparison key used for best-of-day selection
// and averaging.
func trainingMaxValue(s Sample) float64 {
	_, trm := TrainingMax(s)
	return trm
}

// BestSamplePerDay keeps, for each distinct calendar date, only the sample
// with the highest training-max value. This stops a light warm-up from
// diluting a heavy top set logged the same day. The result is ordered by
// date ascending.
func BestSamplePerDay(samples []Sample) []Sample {
	best := make(map[string]Sample)
	for _, s := range samples {
		cur, ok := best[s.Date]
		if !ok || trainingMaxValue(s) > trainingMaxValue(cur) {
			best[s.Date] = s
		}
	}

	out := make([]Sample, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// TimeWeightedAverage reduces samples to one TRM estimate: each day's best
// sample contributes its training-max value, weighted by exponential
// recency decay 0.5^(daysAgo/HalfLifeDays). The weighted mean is rounded
// down to the nearest 5. Empty input yields 0.
func TimeWeightedAverage(samples []Sample, now time.Time) float64 {
	bests := BestSamplePerDay(samples)
	if len(bests) == 0 {
		return 0
	}

	var weightedSum, weightSum float64
	for _, s := range bests {
		w := decayWeight(s.Date, now)
		weightedSum += trainingMaxValue(s) * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return roundDown5(weightedSum / weightSum)
}

// WeightedOneRM is the companion 1RM estimate: the same per-day bests and
// decay weights as TimeWeightedAverage, averaging the Epley outputs and
// rounding to the nearest whole unit.
func WeightedOneRM(samples []Sample, now time.Time) float64 {
	bests := BestSamplePerDay(samples)
	if len(bests) == 0 {
		return 0
	}

	var weightedSum, weightSum float64
	for _, s := range bests {
		w := decayWeight(s.Date, now)
		oneRM, _ := TrainingMax(s)
		weightedSum += oneRM * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return math.Round(weightedSum / weightSum)
}

// IsStale reports whether the last sampled day is more than StaleAfterDays
// before now. A missing or unparseable date counts as stale.
func IsStale(lastPerformed string, now time.Time) bool {
	if lastPerformed == "" {
		return true
	}
	day, err := time.ParseInLocation(models.DateLayout, lastPerformed, time.Local)
	if err != nil {
		return true
	}
	return now.Sub(day) > StaleAfterDays*24*time.Hour
}

// TrendOf compares the most recent day's best training max against the
// mean of up to trendWindow preceding days' bests. A delta beyond the
// trend band yields up or down; within it, stable. Fewer than two distinct
// sampled days yields TrendNone, not stable.
func TrendOf(samples []Sample) Trend {
	bests := BestSamplePerDay(samples)
	if len(bests) < 2 {
		return TrendNone
	}

	latest := trainingMaxValue(bests[len(bests)-1])

	start := len(bests) - 1 - trendWindow
	if start < 0 {
		start = 0
	}
	prior := bests[start : len(bests)-1]

	var sum float64
	for _, s := range prior {
		sum += trainingMaxValue(s)
	}
	mean := sum / float64(len(prior))
	if mean == 0 {
		return TrendStable
	}

	delta := (latest - mean) / mean
	switch {
	case delta > trendBand:
		return TrendUp
	case delta < -trendBand:
		return TrendDown
	default:
		return TrendStable
	}
}

func decayWeight(date string, now time.Time) float64 {
	day, err := time.ParseInLocation(models.DateLayout, date, time.Local)
	if err != nil {
		return 0
	}
	daysAgo := now.Sub(day).Hours() / 24
	if daysAgo < 0 {
		daysAgo = 0
	}
	return math.Pow(0.5, daysAgo/HalfLifeDays)
}

func roundDown5(v float64) float64 {
	return math.Floor(v/5) * 5
}

func roundNearest5(v float64) float64 {
	return math.Round(v/5) * 5
}
