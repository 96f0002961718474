// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Business management metrics
	IncBusinessCreated()
	IncBusinessUpdated()
	IncBusinessDeleted()
	IncBusinessLimitRejected()

	// Business cache metrics
	IncBusinessCacheHit()
	IncBusinessCacheMiss()

	// User reconciliation metrics
	IncUserSync(outcome string) // outcome: "existing", "linked", "created" or "failed"

	// Event pipeline metrics
	IncEventPublished(status string) // status: "success" or "dropped"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
