package report

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records corpus run statistics in a private registry so a run
// can be exported as a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	// Files processed by result ("success" or "failure") and failure level
	Files *prometheus.CounterVec

	// Requirements and links extracted from successful files
	Extracted *prometheus.CounterVec

	// Per-file processing latency
	FileLatency prometheus.Histogram
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Files: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reqifnorm_corpus_files_total",
			Help: "Corpus files processed by result and failure level",
		}, []string{"result", "level"}),

		Extracted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reqifnorm_corpus_extracted_total",
			Help: "Requirements and links extracted from corpus files",
		}, []string{"kind"}), // kind: "requirements", "links"

		FileLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reqifnorm_corpus_file_duration_seconds",
			Help:    "Duration of parsing and flattening one corpus file",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// Observe records one file result.
func (m *Metrics) Observe(res *FileResult, d time.Duration) {
	if m == nil {
		return
	}
	m.FileLatency.Observe(d.Seconds())
	if !res.Success {
		m.Files.WithLabelValues("failure", string(res.ErrorLevel)).Inc()
		return
	}
	m.Files.WithLabelValues("success", "").Inc()
	m.Extracted.WithLabelValues("requirements").Add(float64(res.RequirementsCount))
	m.Extracted.WithLabelValues("links").Add(float64(res.LinksCount))
}

// Gatherer exposes the registry, e.g. for testutil.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the metrics in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Gatherer())
}
