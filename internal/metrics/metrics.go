package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveRenderers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mirror_renderer_active",
		Help: "Number of live renderers by kind",
	}, []string{"kind"})
	CacheDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mirror_renderer_cache_depth",
		Help: "Decoded units buffered ahead of the output device",
	}, []string{"kind"})
)

// Counters
var (
	UnitsDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_renderer_units_decoded_total",
		Help: "Decoded units produced by codec",
	}, []string{"codec"})
	UnitsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_renderer_units_dropped_total",
		Help: "Decoded units dropped because the cache was full",
	}, []string{"kind"})
	UnitsStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_renderer_units_stale_total",
		Help: "Audio units discarded after a format change",
	})
	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_renderer_decode_errors_total",
		Help: "Access units that failed to decode by codec",
	}, []string{"codec"})
	UnderrunBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_renderer_underrun_bytes_total",
		Help: "Silence bytes written to the audio device on underrun",
	})
	PicturesOverwrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_renderer_pictures_overwritten_total",
		Help: "Pending pictures replaced before they were presented",
	})
	PicturesPresentedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_renderer_pictures_presented_total",
		Help: "Pictures uploaded to the video surface",
	})
	UnitsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_renderer_video_units_skipped_total",
		Help: "Video access units skipped while waiting for a keyframe",
	})
	ReconfigurationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_renderer_reconfigurations_total",
		Help: "Renderer reconfigurations by outcome",
	}, []string{"outcome"})
	IngestUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_renderer_ingest_units_total",
		Help: "Access units delivered by ingest sources",
	}, []string{"source"})
)

// Histograms
var (
	DecodeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mirror_renderer_decode_duration_ms",
		Help:    "Per access unit decode and convert duration in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	}, []string{"kind"})
)
