package metrics

import "sync/atomic"

// Snapshot captures current in-memory counters.
type Snapshot struct {
	BusinessesCreated       uint64
	BusinessesUpdated       uint64
	BusinessesDeleted       uint64
	BusinessLimitRejections uint64
	BusinessCacheHits       uint64
	BusinessCacheMisses     uint64
	UserSyncExisting        uint64
	UserSyncLinked          uint64
	UserSyncCreated         uint64
	UserSyncFailed          uint64
	EventsPublished         uint64
	EventsDropped           uint64
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics endpoint
// and is used by tests to assert on counters.
type InMemoryRecorder struct {
	businessesCreated       atomic.Uint64
	businessesUpdated       atomic.Uint64
	businessesDeleted       atomic.Uint64
	businessLimitRejections atomic.Uint64
	businessCacheHits       atomic.Uint64
	businessCacheMisses     atomic.Uint64
	userSyncExisting        atomic.Uint64
	userSyncLinked          atomic.Uint64
	userSyncCreated         atomic.Uint64
	userSyncFailed          atomic.Uint64
	eventsPublished         atomic.Uint64
	eventsDropped           atomic.Uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		BusinessesCreated:       m.businessesCreated.Load(),
		BusinessesUpdated:       m.businessesUpdated.Load(),
		BusinessesDeleted:       m.businessesDeleted.Load(),
		BusinessLimitRejections: m.businessLimitRejections.Load(),
		BusinessCacheHits:       m.businessCacheHits.Load(),
		BusinessCacheMisses:     m.businessCacheMisses.Load(),
		UserSyncExisting:        m.userSyncExisting.Load(),
		UserSyncLinked:          m.userSyncLinked.Load(),
		UserSyncCreated:         m.userSyncCreated.Load(),
		UserSyncFailed:          m.userSyncFailed.Load(),
		EventsPublished:         m.eventsPublished.Load(),
		EventsDropped:           m.eventsDropped.Load(),
	}
}

// IncBusinessCreated increments the business created counter.
func (m *InMemoryRecorder) IncBusinessCreated() {
	m.businessesCreated.Add(1)
}

// IncBusinessUpdated increments the business updated counter.
func (m *InMemoryRecorder) IncBusinessUpdated() {
	m.businessesUpdated.Add(1)
}

// IncBusinessDeleted increments the business deleted counter.
func (m *InMemoryRecorder) IncBusinessDeleted() {
	m.businessesDeleted.Add(1)
}

// IncBusinessLimitRejected increments the quota rejection counter.
func (m *InMemoryRecorder) IncBusinessLimitRejected() {
	m.businessLimitRejections.Add(1)
}

// IncBusinessCacheHit increments the cache hit counter.
func (m *InMemoryRecorder) IncBusinessCacheHit() {
	m.businessCacheHits.Add(1)
}

// IncBusinessCacheMiss increments the cache miss counter.
func (m *InMemoryRecorder) IncBusinessCacheMiss() {
	m.businessCacheMisses.Add(1)
}

// IncUserSync increments the counter for a reconciliation outcome.
// Unknown outcomes are ignored.
func (m *InMemoryRecorder) IncUserSync(outcome string) {
	switch outcome {
	case "existing":
		m.userSyncExisting.Add(1)
	case "linked":
		m.userSyncLinked.Add(1)
	case "created":
		m.userSyncCreated.Add(1)
	case "failed":
		m.userSyncFailed.Add(1)
	}
}

// IncEventPublished increments the event publish counter for status.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	if status == "success" {
		m.eventsPublished.Add(1)
		return
	}
	m.eventsDropped.Add(1)
}
