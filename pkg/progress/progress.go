// Package progress provides progress-reporting helpers: a clamped stage
// callback, a throttled per-stage tracker with throughput and ETA, and sinks.
package progress

// EmitStage calls cb with a stage label and clamped processed/total values.
// A non-positive total means the amount of work is unknown: it is reported
// as zero and processed is not capped. It is a no-op when cb is nil.
func EmitStage(cb func(stage string, processed, total int), stage string, processed, total int) {
	if cb == nil {
		return
	}

	if total < 0 {
		total = 0
	}
	if processed < 0 {
		processed = 0
	}
	if total > 0 && processed > total {
		processed = total
	}

	cb(stage, processed, total)
}
