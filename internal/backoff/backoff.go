package backoff

import (
	"math"
	"math/rand"
)

// Policies accepted for analyzer retry delays. Unknown values fall back
// to full jitter, which is the safest default against a shared upstream.
const (
	PolicyFixed          = "fixed"
	PolicyLinear         = "linear"
	PolicyExponential    = "exponential"
	PolicyExpEqualJitter = "exp_equal_jitter"
	PolicyExpFullJitter  = "exp_full_jitter"
)

// Compute returns a delay in seconds for the given retry attempt.
// attempts counts completed failures, so the first retry passes 0.
func Compute(policy string, baseSeconds, maxSeconds, attempts int, rng *rand.Rand) int {
	if attempts < 0 {
		attempts = 0
	}
	if baseSeconds <= 0 {
		baseSeconds = 1
	}
	if maxSeconds <= 0 {
		maxSeconds = baseSeconds
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	switch policy {
	case PolicyFixed:
		return min(baseSeconds, maxSeconds)
	case PolicyLinear:
		return min(baseSeconds*max(1, attempts), maxSeconds)
	case PolicyExponential:
		return capped(baseSeconds, maxSeconds, attempts)
	case PolicyExpEqualJitter:
		ceiling := capped(baseSeconds, maxSeconds, attempts)
		half := ceiling / 2
		return half + rng.Intn(half+1)
	default:
		ceiling := capped(baseSeconds, maxSeconds, attempts)
		if ceiling <= 0 {
			return 0
		}
		return rng.Intn(ceiling + 1)
	}
}

// capped is base*2^attempts clamped to maxSeconds.
func capped(baseSeconds, maxSeconds, attempts int) int {
	return min(int(float64(baseSeconds)*math.Pow(2, float64(attempts))), maxSeconds)
}
