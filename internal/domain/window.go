package domain

import (
	"math"
	"time"
)

// maxWindowHours is the first length in hours that no longer fits a time.Duration.
var maxWindowHours = float64(math.MaxInt64) / float64(time.Hour)

// WindowDuration converts a chart window length given in hours. ok is false
// when hours is not positive, not finite, or too large for a time.Duration.
func WindowDuration(hours float64) (d time.Duration, ok bool) {
	if math.IsNaN(hours) || hours <= 0 || hours >= maxWindowHours {
		return 0, false
	}
	d = time.Duration(hours * float64(time.Hour))
	if d <= 0 {
		return 0, false
	}
	return d, true
}
