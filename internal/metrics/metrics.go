package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the request-serving core.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthCache       *prometheus.CounterVec
	GalleryCache    *prometheus.CounterVec
	GalleryLoads    prometheus.Counter
	CachedGalleries prometheus.Gauge
}

// New creates the core metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vface_requests_total",
			Help: "Total number of dispatched requests by operation and status code",
		}, []string{"operation", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vface_request_duration_seconds",
			Help:    "Duration of dispatched requests including encoder and store calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		AuthCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vface_auth_cache_lookups_total",
			Help: "Credential cache lookups by result (hit or miss)",
		}, []string{"result"}),
		GalleryCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vface_gallery_cache_lookups_total",
			Help: "Gallery cache lookups by result (hit or miss)",
		}, []string{"result"}),
		GalleryLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "vface_gallery_loads_total",
			Help: "Number of galleries loaded from the identity store",
		}),
		CachedGalleries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vface_cached_galleries",
			Help: "Number of galleries currently held in the cache",
		}),
	}
}

// ObserveRequest records a finished request. Call with time.Now() taken at
// the start of the request.
func (m *Metrics) ObserveRequest(operation string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// AuthCacheLookup records a credential cache hit or miss.
func (m *Metrics) AuthCacheLookup(hit bool) {
	if m == nil {
		return
	}
	m.AuthCache.WithLabelValues(result(hit)).Inc()
}

// GalleryCacheLookup records a gallery cache hit or miss.
func (m *Metrics) GalleryCacheLookup(hit bool) {
	if m == nil {
		return
	}
	m.GalleryCache.WithLabelValues(result(hit)).Inc()
}

// GalleryLoaded records a gallery populated from the store.
func (m *Metrics) GalleryLoaded() {
	if m == nil {
		return
	}
	m.GalleryLoads.Inc()
}

// SetCachedGalleries updates the cached gallery gauge.
func (m *Metrics) SetCachedGalleries(n int) {
	if m == nil {
		return
	}
	m.CachedGalleries.Set(float64(n))
}

func result(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
