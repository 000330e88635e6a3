package types

import "math"

// Round2 rounds v half-up at the second decimal place. All timeSaved values
// leaving the read path go through this so JSON output never carries float
// accumulation noise (10.1+10.1+10.1 renders as 30.3, not 30.299999...).
// Values that round to an integer marshal without a fractional part.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
