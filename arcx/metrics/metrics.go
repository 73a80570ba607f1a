package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Skip reasons for arcx_entries_skipped_total
const (
	SkipEncrypted = "encrypted"
	SkipBomb      = "bomb"
	SkipDisk      = "disk"
	SkipIO        = "io"
)

type ExtractorMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	archivesTotal   *prometheus.CounterVec
	entriesTotal    prometheus.Counter
	skippedTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	archiveDuration prometheus.Histogram
}

// New returns a fresh registry with the Go/process collectors and the
// extractor counters. A nil *ExtractorMetrics is valid and records nothing.
func New() *ExtractorMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ExtractorMetrics{
		archivesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcx_archives_processed_total",
			Help: "Archives handled by the extractor, by outcome",
		}, []string{"outcome"}),
		entriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcx_entries_extracted_total",
			Help: "Entries materialized to local storage",
		}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcx_entries_skipped_total",
			Help: "Entries skipped, by reason",
		}, []string{"reason"}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcx_bytes_extracted_total",
			Help: "Bytes written while materializing entries",
		}),
		archiveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arcx_archive_duration_seconds",
			Help:    "Wall time spent processing one archive",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 1800},
		}),
	}
	reg.MustRegister(
		m.archivesTotal,
		m.entriesTotal,
		m.skippedTotal,
		m.bytesTotal,
		m.archiveDuration,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ExtractorMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ExtractorMetrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *ExtractorMetrics) IncArchive(outcome string) {
	if m == nil {
		return
	}
	m.archivesTotal.WithLabelValues(outcome).Inc()
}

func (m *ExtractorMetrics) IncEntryExtracted(bytes int64) {
	if m == nil {
		return
	}
	m.entriesTotal.Inc()
	if bytes > 0 {
		m.bytesTotal.Add(float64(bytes))
	}
}

func (m *ExtractorMetrics) IncEntrySkipped(reason string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(reason).Inc()
}

func (m *ExtractorMetrics) ObserveArchiveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.archiveDuration.Observe(seconds)
}

// WriteText dumps the arcx_* families in the Prometheus text format
func (m *ExtractorMetrics) WriteText(w io.Writer) error {
	families, err := m.reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "arcx_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
