// Package metrics declares tracecap's Prometheus collectors: queue
// depths and compression levels for both pipeline stages, commit
// latency and retry counts for the store façade, and string-interner
// and table row counts for the collection layer. No other tracecap
// package records into these collectors, so they keep their zero
// values. The metrics server is the one HTTP surface tracecap exposes.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// StageQueueDepth reports the current number of queued payloads per
	// pipeline stage ("a" or "b").
	StageQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracecap_pipeline_stage_queue_depth",
		Help: "Number of payloads currently queued in a pipeline stage",
	}, []string{"stage"})

	// CompressionLevelInEffect reports the compression level the load
	// balancer last assigned per stage.
	CompressionLevelInEffect = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracecap_pipeline_compression_level",
		Help: "Compression level currently in effect for a pipeline stage",
	}, []string{"stage"})

	// CommitLatency times each SafeTransaction commit.
	CommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracecap_store_commit_latency_seconds",
		Help:    "Latency of SafeTransaction commits",
		Buckets: prometheus.DefBuckets,
	})

	// CommitRetries counts busy/locked retries absorbed by SafeTransaction.
	CommitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracecap_store_commit_retries_total",
		Help: "Total number of busy/locked retries absorbed by SafeTransaction",
	})

	// FramesCommitted counts CollectionData rows committed.
	FramesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracecap_frames_committed_total",
		Help: "Total number of CollectionData rows committed",
	})

	// InternedStringCount reports the total number of distinct interned
	// strings known to the manager.
	InternedStringCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracecap_interned_string_count",
		Help: "Total number of distinct interned strings",
	})

	// HeartbeatSuppressedTotal counts header-only frames emitted under
	// heartbeat change-suppression, per collection.
	HeartbeatSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracecap_heartbeat_suppressed_total",
		Help: "Total number of ticks emitted as header-only (unchanged) per collection",
	}, []string{"collection"})

	// BackpressureLevel reports the current manager-side back-pressure
	// compression-level deficit.
	BackpressureLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracecap_backpressure_deficit",
		Help: "Current compression-level deficit applied by manager-side back-pressure",
	})
)

// ObserveCommit records one SafeTransaction's latency.
func ObserveCommit(d time.Duration) {
	CommitLatency.Observe(d.Seconds())
}

// Server is the metrics+health HTTP surface, bound to a dedicated
// address separate from any application traffic.
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

// NewServer builds a Server listening on addr, exposing /metrics and
// /health.
func NewServer(addr string, log *logrus.Entry) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: router},
		log:        log,
	}
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start() {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting metrics server")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping metrics server")
	return s.httpServer.Shutdown(ctx)
}
