package data

import "github.com/halcyon-desk/trading-engine/pkg/types"

// validBar reports whether a bar is internally consistent. Feeds
// occasionally emit zero-priced or inverted candles around halts.
func validBar(b types.Bar) bool {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	if b.High < b.Low {
		return false
	}
	if b.Volume < 0 {
		return false
	}
	if b.Timestamp.IsZero() {
		return false
	}
	return true
}

// FilterBars drops malformed bars and reports how many were rejected.
func FilterBars(bars []types.Bar) ([]types.Bar, int) {
	good := bars[:0]
	rejected := 0
	for _, b := range bars {
		if validBar(b) {
			good = append(good, b)
		} else {
			rejected++
		}
	}
	return good, rejected
}
