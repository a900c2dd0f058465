package server

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/observability"
)

// Metrics records pipeline, cache, backend and request metrics in
// Prometheus. It implements the observability hook interfaces.
type Metrics struct {
	registry *prometheus.Registry

	loads         *prometheus.CounterVec
	loadDuration  prometheus.Histogram
	persons       prometheus.Histogram
	buildNodes    prometheus.Histogram
	fallbackRoots prometheus.Counter
	cycles        prometheus.Counter
	layoutTime    prometheus.Histogram
	renders       *prometheus.CounterVec
	renderTime    *prometheus.HistogramVec
	exports       *prometheus.CounterVec
	exportBytes   *prometheus.HistogramVec
	exportTime    *prometheus.HistogramVec

	cacheOps   *prometheus.CounterVec
	cacheBytes *prometheus.CounterVec

	backendRequests *prometheus.CounterVec
	backendTime     *prometheus.HistogramVec
	backendErrors   *prometheus.CounterVec

	requests    *prometheus.CounterVec
	requestTime *prometheus.HistogramVec
}

var (
	_ observability.PipelineHooks = (*Metrics)(nil)
	_ observability.CacheHooks    = (*Metrics)(nil)
	_ observability.HTTPHooks     = (*Metrics)(nil)
)

var latencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// NewMetrics creates the collectors in a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		loads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stemma_tree_loads_total",
			Help: "Tree loads from the data source, labelled by outcome code.",
		}, []string{"code"}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stemma_tree_load_duration_seconds",
			Help:    "Time to fetch a tree and its collections.",
			Buckets: latencyBuckets,
		}),
		persons: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stemma_tree_persons",
			Help:    "Persons per loaded tree.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		buildNodes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stemma_hierarchy_nodes",
			Help:    "Nodes per built hierarchy.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		fallbackRoots: f.NewCounter(prometheus.CounterOpts{
			Name: "stemma_fallback_roots_total",
			Help: "Builds that fell back to the earliest-born person as root.",
		}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "stemma_truncated_cycles_total",
			Help: "Ancestry cycles truncated while building hierarchies.",
		}),
		layoutTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stemma_layout_duration_seconds",
			Help:    "Time to lay out a hierarchy.",
			Buckets: latencyBuckets,
		}),
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stemma_renders_total",
			Help: "Rendered artifacts, labelled by format and status.",
		}, []string{"format", "status"}),
		renderTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stemma_render_duration_seconds",
			Help:    "Time to render one artifact.",
			Buckets: latencyBuckets,
		}, []string{"format"}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stemma_exports_total",
			Help: "Raster exports, labelled by quality and status.",
		}, []string{"quality", "status"}),
		exportBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stemma_export_bytes",
			Help:    "Size of exported images.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8),
		}, []string{"quality"}),
		exportTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stemma_export_duration_seconds",
			Help:    "Time to rasterize an export.",
			Buckets: latencyBuckets,
		}, []string{"quality"}),

		cacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stemma_cache_operations_total",
			Help: "Cache lookups and writes, labelled by key type and result.",
		}, []string{"key_type", "result"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stemma_cache_written_bytes_total",
			Help: "Bytes written to the cache.",
		}, []string{"key_type"}),

		backendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stemma_backend_requests_total",
			Help: "Requests to the family-tree backend, labelled by method and status code.",
		}, []string{"method", "code"}),
		backendTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stemma_backend_request_duration_seconds",
			Help:    "Backend response time.",
			Buckets: latencyBuckets,
		}, []string{"method"}),
		backendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stemma_backend_errors_total",
			Help: "Backend transport failures, labelled by error code.",
		}, []string{"code"}),

		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stemma_http_requests_total",
			Help: "Requests served, labelled by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stemma_http_request_duration_seconds",
			Help:    "Request latency by route.",
			Buckets: latencyBuckets,
		}, []string{"route"}),
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Install registers m as the global observability hooks.
func (m *Metrics) Install() {
	observability.SetPipelineHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func code(err error) string {
	if err == nil {
		return "OK"
	}
	if c := errors.GetCode(err); c != "" {
		return string(c)
	}
	return string(errors.ErrCodeInternal)
}

func (m *Metrics) OnLoadStart(context.Context, int64) {}

func (m *Metrics) OnLoadComplete(_ context.Context, _ int64, persons int, d time.Duration, err error) {
	m.loads.WithLabelValues(code(err)).Inc()
	m.loadDuration.Observe(d.Seconds())
	if err == nil {
		m.persons.Observe(float64(persons))
	}
}

func (m *Metrics) OnBuildComplete(_ context.Context, nodes int, fallback bool, cycles int, _ time.Duration) {
	m.buildNodes.Observe(float64(nodes))
	if fallback {
		m.fallbackRoots.Inc()
	}
	m.cycles.Add(float64(cycles))
}

func (m *Metrics) OnLayoutComplete(_ context.Context, _ int, d time.Duration) {
	m.layoutTime.Observe(d.Seconds())
}

func (m *Metrics) OnRenderComplete(_ context.Context, format string, _ int, d time.Duration, err error) {
	m.renders.WithLabelValues(format, status(err)).Inc()
	m.renderTime.WithLabelValues(format).Observe(d.Seconds())
}

func (m *Metrics) OnExportComplete(_ context.Context, quality string, size int, d time.Duration, err error) {
	m.exports.WithLabelValues(quality, status(err)).Inc()
	if err == nil {
		m.exportBytes.WithLabelValues(quality).Observe(float64(size))
		m.exportTime.WithLabelValues(quality).Observe(d.Seconds())
	}
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheOps.WithLabelValues(keyType, "set").Inc()
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, method, _, _ string, statusCode int, d time.Duration) {
	m.backendRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.backendTime.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, _, _ string, err error) {
	m.backendErrors.WithLabelValues(code(err)).Inc()
}

// observeRequest records one served request.
func (m *Metrics) observeRequest(route, method string, statusCode int, d time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	m.requestTime.WithLabelValues(route).Observe(d.Seconds())
}
