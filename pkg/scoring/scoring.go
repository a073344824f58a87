package scoring

import (
	"math"

	"github.com/cypherlabdev/market-signals-service/pkg/dynamics"
)

// Component weights and normalization ranges for the conviction score
const (
	strengthWeight = 0.55
	strengthFloor  = 0.25
	strengthCeil   = 2.0

	velocityWeight = 0.30
	velocityFloor  = 0.005
	velocityCeil   = 0.05

	keyCrossBonus = 0.15
)

// CompositeScore combines move magnitude, velocity, a key-number-cross flag
// and the time bucket into a bounded conviction score in [0, 100]
func CompositeScore(moveStrength, velocity float64, keyCross bool, bucket dynamics.Bucket) int {
	score := strengthWeight * dynamics.Normalize(math.Abs(moveStrength), strengthFloor, strengthCeil)
	score += velocityWeight * dynamics.Normalize(velocity, velocityFloor, velocityCeil)
	if keyCross {
		score += keyCrossBonus
	}
	score += timeBonus(bucket)

	return int(math.Round(100 * dynamics.Clamp01(score)))
}

// timeBonus is a fixed step table: moves closer to tip-off carry more weight
func timeBonus(bucket dynamics.Bucket) float64 {
	switch bucket {
	case dynamics.BucketPretip:
		return 0.05
	case dynamics.BucketLate:
		return 0.03
	case dynamics.BucketMid:
		return 0.01
	default:
		return 0
	}
}
