package perfdata

import "github.com/srodi/threadtop/pkg/types"

// HotSpot counter names. Collector 0 is the young generation collector,
// collector 1 the old generation one. Times are in high resolution ticks.
const (
	hrtFrequency      = "sun.os.hrt.frequency"
	youngInvocations  = "sun.gc.collector.0.invocations"
	youngTime         = "sun.gc.collector.0.time"
	fullInvocations   = "sun.gc.collector.1.invocations"
	fullTime          = "sun.gc.collector.1.time"
	safepoints        = "sun.rt.safepoints"
	safepointTime     = "sun.rt.safepointTime"
	safepointSyncTime = "sun.rt.safepointSyncTime"
)

// JVMCounters maps raw HotSpot counters onto threadtop counter names and
// reports which groups were complete. Tick values are converted to
// milliseconds, so a missing tick frequency disables both groups.
func JVMCounters(raw map[string]int64) (counters map[string]int64, gc, safepoint bool) {
	counters = make(map[string]int64)
	freq := raw[hrtFrequency]
	if freq <= 0 {
		return counters, false, false
	}
	millis := func(ticks int64) int64 { return int64(float64(ticks) * 1000 / float64(freq)) }

	yc, ok1 := raw[youngInvocations]
	yt, ok2 := raw[youngTime]
	fc, ok3 := raw[fullInvocations]
	ft, ok4 := raw[fullTime]
	if ok1 && ok2 && ok3 && ok4 {
		gc = true
		counters[types.CounterYoungGCCount] = yc
		counters[types.CounterYoungGCTimeMs] = millis(yt)
		counters[types.CounterFullGCCount] = fc
		counters[types.CounterFullGCTimeMs] = millis(ft)
	}

	sc, ok1 := raw[safepoints]
	st, ok2 := raw[safepointTime]
	ss, ok3 := raw[safepointSyncTime]
	if ok1 && ok2 && ok3 {
		safepoint = true
		counters[types.CounterSafepointCount] = sc
		counters[types.CounterSafepointTimeMs] = millis(st)
		counters[types.CounterSafepointSyncMs] = millis(ss)
	}
	return counters, gc, safepoint
}
