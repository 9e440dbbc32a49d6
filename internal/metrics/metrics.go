package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Метрики участков. Регистрируются в глобальном регистре Prometheus
// и отдаются через /metrics REST-сервера.
var (
	PlotsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyplots",
		Name:      "plots_created_total",
		Help:      "Количество созданных участков по типу операции (create, regenerate, lobby).",
	}, []string{"kind"})

	PlotsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyplots",
		Name:      "plots",
		Help:      "Текущее количество участков в реестре.",
	})

	StampDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skyplots",
		Name:      "stamp_duration_seconds",
		Help:      "Длительность размещения шаблона участка.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	BlocksPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skyplots",
		Name:      "blocks_placed_total",
		Help:      "Общее число блоков, поставленных при размещении шаблонов.",
	})

	PlacementErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skyplots",
		Name:      "placement_errors_total",
		Help:      "Размещения шаблонов, прерванные ошибкой мира.",
	})

	DuplicateSpawns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skyplots",
		Name:      "duplicate_spawn_markers_total",
		Help:      "Повторные маркеры точки появления, проигнорированные при размещении.",
	})

	PersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skyplots",
		Name:      "persist_errors_total",
		Help:      "Неудачные сохранения реестра участков.",
	})

	CursorLayer = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyplots",
		Name:      "cursor_layer",
		Help:      "Текущее кольцо спирали размещения.",
	})
)

func init() {
	prometheus.MustRegister(
		PlotsCreated,
		PlotsTotal,
		StampDuration,
		BlocksPlaced,
		PlacementErrors,
		DuplicateSpawns,
		PersistErrors,
		CursorLayer,
	)
}
