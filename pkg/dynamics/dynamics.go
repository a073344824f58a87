package dynamics

import (
	"math"
	"time"
)

// Bucket classifies how far a market is from tip-off
type Bucket string

const (
	BucketPretip Bucket = "PRETIP"
	BucketLate   Bucket = "LATE"
	BucketMid    Bucket = "MID"
	BucketOpen   Bucket = "OPEN"
)

// TimeBucket maps minutes-to-tip to a bucket using the scoring boundaries
// (60/360/1440). Used by the composite scorer.
func TimeBucket(minutesToTip float64) Bucket {
	switch {
	case minutesToTip <= 60:
		return BucketPretip
	case minutesToTip <= 360:
		return BucketLate
	case minutesToTip <= 1440:
		return BucketMid
	default:
		return BucketOpen
	}
}

// BackfillTimeBucket maps minutes-to-tip using the historical backfill
// boundaries (30/120/360). Stored signals written with these boundaries
// depend on them, so this table must not be merged with TimeBucket.
func BackfillTimeBucket(minutesToTip float64) Bucket {
	switch {
	case minutesToTip <= 30:
		return BucketPretip
	case minutesToTip <= 120:
		return BucketLate
	case minutesToTip <= 360:
		return BucketMid
	default:
		return BucketOpen
	}
}

// ImpliedProbability converts an American-odds price to implied probability
func ImpliedProbability(price int) float64 {
	if price >= 0 {
		return 100.0 / (float64(price) + 100.0)
	}
	abs := math.Abs(float64(price))
	return abs / (abs + 100.0)
}

// SeriesPoint is one observation in an ordered time series
type SeriesPoint struct {
	At    time.Time
	Value float64
}

// Velocity returns the absolute rate of change per minute across an ordered
// series. Zero when fewer than two points or no elapsed time.
func Velocity(points []SeriesPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	first := points[0]
	last := points[len(points)-1]
	elapsed := last.At.Sub(first.At).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return math.Abs(last.Value-first.Value) / elapsed
}

// Acceleration returns the change in velocity between the first and second
// half of an ordered series, per minute. Zero when fewer than three points.
func Acceleration(points []SeriesPoint) float64 {
	if len(points) < 3 {
		return 0
	}
	mid := len(points) / 2
	return Velocity(points[mid:]) - Velocity(points[:mid+1])
}

// PopulationStdDev returns the population standard deviation of values.
// Zero for fewer than one value.
func PopulationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Mean returns the arithmetic mean of values, zero for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Clamp01 clamps x to [0, 1]
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Normalize scales x into [0, 1] relative to [lo, hi]
func Normalize(x, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return Clamp01((x - lo) / (hi - lo))
}
