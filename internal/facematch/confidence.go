package facematch

import "math"

// MatchCutoff is the largest distance at which two vectors are considered
// the same face. The cutoff itself is a match.
const MatchCutoff = 0.6

// Confidence converts a distance into a score in [0, 100].
//
// Above the cutoff the score falls linearly from 50 towards 0. At or below
// the cutoff it follows a convex curve that reaches 100 well before the
// distance reaches zero (any distance <= 1-2*(1-MatchCutoff) scores 100).
// The result is rounded to three decimals and never increases with distance.
func Confidence(distance float64) float64 {
	span := 1.0 - MatchCutoff
	linear := clamp((1.0-distance)/(span*2.0), 0, 1)

	if distance > MatchCutoff {
		return round3(linear * 100)
	}
	curve := math.Pow(clamp((linear-0.5)*2, 0, 1), 0.2)
	return round3((linear + (1.0-linear)*curve) * 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
