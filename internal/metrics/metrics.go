package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksTotal - чанки по датасету, сплиту и статусу (kept/skipped)
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_prep_chunks_total",
			Help: "Total number of chunks handled, by dataset, split and status",
		},
		[]string{"dataset", "split", "status"},
	)

	// SkipsTotal - пропущенные записи по причине
	SkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_prep_skips_total",
			Help: "Total number of skipped records by dataset and reason",
		},
		[]string{"dataset", "reason"},
	)

	// AudioWrittenTotal counts slices actually encoded (not reused).
	AudioWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_prep_audio_written_total",
			Help: "Total number of audio files encoded",
		},
		[]string{"dataset"},
	)

	// ExportDuration - время экспорта одного чанка (сек)
	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corpus_prep_export_duration_seconds",
			Help:    "Chunk export duration in seconds by dataset",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"dataset"},
	)

	// ManifestLines is the line count of the last written manifest.
	ManifestLines = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corpus_prep_manifest_lines",
			Help: "Number of lines in the last written manifest",
		},
		[]string{"dataset", "split"},
	)
)

func RecordKept(dataset, split string) {
	ChunksTotal.WithLabelValues(dataset, split, "kept").Inc()
}

func RecordSkip(dataset, reason string) {
	ChunksTotal.WithLabelValues(dataset, "", "skipped").Inc()
	SkipsTotal.WithLabelValues(dataset, reason).Inc()
}

func RecordAudioWritten(dataset string) {
	AudioWrittenTotal.WithLabelValues(dataset).Inc()
}

// RecordExport записывает время экспорта (сек)
func RecordExport(dataset string, seconds float64) {
	ExportDuration.WithLabelValues(dataset).Observe(seconds)
}

func SetManifestLines(dataset, split string, n int) {
	ManifestLines.WithLabelValues(dataset, split).Set(float64(n))
}
