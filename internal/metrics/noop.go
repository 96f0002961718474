package metrics

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncBusinessCreated is a no-op.
func (n *NoopRecorder) IncBusinessCreated() {}

// IncBusinessUpdated is a no-op.
func (n *NoopRecorder) IncBusinessUpdated() {}

// IncBusinessDeleted is a no-op.
func (n *NoopRecorder) IncBusinessDeleted() {}

// IncBusinessLimitRejected is a no-op.
func (n *NoopRecorder) IncBusinessLimitRejected() {}

// IncBusinessCacheHit is a no-op.
func (n *NoopRecorder) IncBusinessCacheHit() {}

// IncBusinessCacheMiss is a no-op.
func (n *NoopRecorder) IncBusinessCacheMiss() {}

// IncUserSync is a no-op.
func (n *NoopRecorder) IncUserSync(outcome string) {}

// IncEventPublished is a no-op.
func (n *NoopRecorder) IncEventPublished(status string) {}
