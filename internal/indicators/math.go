package indicators

import "math"

// sma returns the simple moving average of the last window values.
func sma(values []float64, window int) (float64, bool) {
	if len(values) < window || window <= 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return sum / float64(window), true
}

// emaSeries returns the exponential moving average series with smoothing
// 2/(span+1), seeded from the first value.
func emaSeries(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// wilderRSI computes the relative strength index with Wilder smoothing.
func wilderRSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return math.NaN()
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// stochastic returns %K (fast) and %D (3-period SMA of %K).
func stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d float64) {
	n := len(closes)
	if n < kPeriod+dPeriod-1 {
		return math.NaN(), math.NaN()
	}
	ks := make([]float64, 0, dPeriod)
	for i := n - dPeriod; i < n; i++ {
		hh, ll := rangeHighLow(highs, lows, i, kPeriod)
		if hh == ll {
			ks = append(ks, 50)
			continue
		}
		ks = append(ks, 100*(closes[i]-ll)/(hh-ll))
	}
	sum := 0.0
	for _, v := range ks {
		sum += v
	}
	return ks[len(ks)-1], sum / float64(len(ks))
}

// williamsR returns Williams %R over the period, in [-100, 0].
func williamsR(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if n < period {
		return math.NaN()
	}
	hh, ll := rangeHighLow(highs, lows, n-1, period)
	if hh == ll {
		return -50
	}
	return -100 * (hh - closes[n-1]) / (hh - ll)
}

func rangeHighLow(highs, lows []float64, end, period int) (hh, ll float64) {
	hh, ll = math.Inf(-1), math.Inf(1)
	for i := end - period + 1; i <= end; i++ {
		if highs[i] > hh {
			hh = highs[i]
		}
		if lows[i] < ll {
			ll = lows[i]
		}
	}
	return hh, ll
}

// cci computes the commodity channel index over the window.
func cci(highs, lows, closes []float64, window int) float64 {
	n := len(closes)
	if n < window {
		return math.NaN()
	}
	tp := make([]float64, window)
	sum := 0.0
	for i := 0; i < window; i++ {
		j := n - window + i
		tp[i] = (highs[j] + lows[j] + closes[j]) / 3
		sum += tp[i]
	}
	mean := sum / float64(window)
	dev := 0.0
	for _, v := range tp {
		dev += math.Abs(v - mean)
	}
	meanDev := dev / float64(window)
	if meanDev == 0 {
		return 0
	}
	return (tp[window-1] - mean) / (0.015 * meanDev)
}

// roc returns the rate of change over the window as a percentage.
func roc(closes []float64, window int) float64 {
	n := len(closes)
	if n <= window || closes[n-1-window] == 0 {
		return math.NaN()
	}
	return (closes[n-1] - closes[n-1-window]) / closes[n-1-window] * 100
}

// bollinger returns the 2-sigma band around the window SMA using the
// population standard deviation.
func bollinger(closes []float64, window int, dev float64) (mid, high, low float64) {
	m, ok := sma(closes, window)
	if !ok {
		return math.NaN(), math.NaN(), math.NaN()
	}
	variance := 0.0
	for _, v := range closes[len(closes)-window:] {
		variance += (v - m) * (v - m)
	}
	sd := math.Sqrt(variance / float64(window))
	return m, m + dev*sd, m - dev*sd
}

// trueRange returns the true range series; the first element uses high-low.
func trueRange(highs, lows, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	tr[0] = highs[0] - lows[0]
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// wilderATR computes the average true range with Wilder smoothing.
func wilderATR(highs, lows, closes []float64, period int) float64 {
	if len(closes) <= period {
		return math.NaN()
	}
	tr := trueRange(highs, lows, closes)
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr[i]
	}
	atr /= float64(period)
	for i := period + 1; i < len(tr); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
	}
	return atr
}

// adx computes the average directional index with Wilder smoothing.
func adx(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if n < 2*period+1 {
		return math.NaN()
	}
	tr := trueRange(highs, lows, closes)

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var sTR, sPlus, sMinus float64
	for i := 1; i <= period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}

	dx := func() float64 {
		if sTR == 0 {
			return 0
		}
		diPlus := 100 * sPlus / sTR
		diMinus := 100 * sMinus / sTR
		if diPlus+diMinus == 0 {
			return 0
		}
		return 100 * math.Abs(diPlus-diMinus) / (diPlus + diMinus)
	}

	adxVal := dx()
	count := 1.0
	for i := period + 1; i < n; i++ {
		sTR = sTR - sTR/float64(period) + tr[i]
		sPlus = sPlus - sPlus/float64(period) + plusDM[i]
		sMinus = sMinus - sMinus/float64(period) + minusDM[i]
		if i < 2*period {
			adxVal += dx()
			count++
			if i == 2*period-1 {
				adxVal /= count
			}
			continue
		}
		adxVal = (adxVal*float64(period-1) + dx()) / float64(period)
	}
	return adxVal
}

// parabolicSAR returns the latest SAR value with standard acceleration
// (0.02 step, 0.2 maximum).
func parabolicSAR(highs, lows []float64) float64 {
	const (
		step    = 0.02
		maxStep = 0.2
	)
	n := len(highs)
	if n < 2 {
		return math.NaN()
	}

	uptrend := highs[1] >= highs[0]
	af := step
	var sar, ep float64
	if uptrend {
		sar = lows[0]
		ep = highs[1]
	} else {
		sar = highs[0]
		ep = lows[1]
	}

	for i := 2; i < n; i++ {
		sar += af * (ep - sar)
		if uptrend {
			// SAR may not enter the prior two bars' range.
			sar = math.Min(sar, math.Min(lows[i-1], lows[i-2]))
			if lows[i] < sar {
				uptrend = false
				sar = ep
				ep = lows[i]
				af = step
				continue
			}
			if highs[i] > ep {
				ep = highs[i]
				af = math.Min(af+step, maxStep)
			}
		} else {
			sar = math.Max(sar, math.Max(highs[i-1], highs[i-2]))
			if highs[i] > sar {
				uptrend = true
				sar = ep
				ep = highs[i]
				af = step
				continue
			}
			if lows[i] < ep {
				ep = lows[i]
				af = math.Min(af+step, maxStep)
			}
		}
	}
	return sar
}

// obv returns the on-balance volume series.
func obv(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// cumulativeVWAP returns the volume-weighted average of the typical price
// over the whole window.
func cumulativeVWAP(typical, volumes []float64) float64 {
	var pv, vol float64
	for i := range typical {
		pv += typical[i] * volumes[i]
		vol += volumes[i]
	}
	if vol == 0 {
		return math.NaN()
	}
	return pv / vol
}

// volumeRatio returns current volume over its rolling mean, 1 when the mean
// is unavailable.
func volumeRatio(volumes []float64, window int) float64 {
	mean, ok := sma(volumes, window)
	if !ok || mean <= 0 {
		return 1
	}
	return volumes[len(volumes)-1] / mean
}

// pctChange returns the percent change of the last value over the value
// lag steps back.
func pctChange(values []float64, lag int) float64 {
	n := len(values)
	if n <= lag || values[n-1-lag] == 0 {
		return math.NaN()
	}
	return (values[n-1] - values[n-1-lag]) / values[n-1-lag]
}
