package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/invoicely/invoicely/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

type sample struct {
	labels string
	value  uint64
}

type counterFamily struct {
	name    string
	help    string
	samples []sample
}

// Metrics returns counters in Prometheus text exposition format.
//
// GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()
	families := []counterFamily{
		{"invoicely_businesses_created_total", "Businesses created.", []sample{{"", snap.BusinessesCreated}}},
		{"invoicely_businesses_updated_total", "Businesses updated.", []sample{{"", snap.BusinessesUpdated}}},
		{"invoicely_businesses_deleted_total", "Businesses deleted.", []sample{{"", snap.BusinessesDeleted}}},
		{"invoicely_business_limit_rejections_total", "Creates rejected by the per-user business quota.", []sample{{"", snap.BusinessLimitRejections}}},
		{"invoicely_business_cache_hits_total", "Single-business lookups served from Redis.", []sample{{"", snap.BusinessCacheHits}}},
		{"invoicely_business_cache_misses_total", "Single-business lookups that fell through to Postgres.", []sample{{"", snap.BusinessCacheMisses}}},
		{"invoicely_user_sync_total", "User reconciliations by outcome.", []sample{
			{`outcome="existing"`, snap.UserSyncExisting},
			{`outcome="linked"`, snap.UserSyncLinked},
			{`outcome="created"`, snap.UserSyncCreated},
			{`outcome="failed"`, snap.UserSyncFailed},
		}},
		{"invoicely_business_events_published_total", "Business lifecycle events by publish status.", []sample{
			{`status="success"`, snap.EventsPublished},
			{`status="dropped"`, snap.EventsDropped},
		}},
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, f := range families {
		writeFamily(w, f)
	}
}

func writeFamily(w io.Writer, f counterFamily) {
	_, _ = fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", f.name, f.help, f.name)
	for _, s := range f.samples {
		if s.labels == "" {
			_, _ = fmt.Fprintf(w, "%s %d\n", f.name, s.value)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s{%s} %d\n", f.name, s.labels, s.value)
	}
}
