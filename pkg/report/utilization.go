package report

// NanosPerMilli converts nanosecond CPU deltas to the millisecond window they
// are compared against.
const NanosPerMilli = 1e6

// CPUUtilization returns value as a percentage of window after dividing value
// by factor. ok is false when the thread had no baseline. Missing data and an
// empty window both yield 0.
func CPUUtilization(value int64, ok bool, window int64, factor float64) float64 {
	if !ok || window == 0 || factor == 0 {
		return 0
	}
	return nonNegative(float64(value) * 100 / factor / float64(window))
}

// ShareOfTotal returns value as a percentage of total, or 0 when value is
// missing or total is 0.
func ShareOfTotal(value int64, ok bool, total int64) float64 {
	if !ok || total == 0 {
		return 0
	}
	return nonNegative(float64(value) * 100 / float64(total))
}

// PerSecond scales a delta observed over windowMs milliseconds to a per second
// rate.
func PerSecond(delta int64, windowMs int64) float64 {
	if windowMs <= 0 {
		return 0
	}
	return float64(delta) * 1000 / float64(windowMs)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
