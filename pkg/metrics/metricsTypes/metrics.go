package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
	Flush()
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_SyncRun       = "indexer.sync.run"
	Metric_Incr_BlocksScanned = "indexer.sync.blocksScanned"
	Metric_Incr_SpanShrunk    = "indexer.sync.spanShrunk"
	Metric_Incr_EventsApplied = "indexer.events.applied"
	Metric_Incr_EventsSkipped = "indexer.events.skipped"
	Metric_Incr_HttpRequest   = "rpc.http.request"

	Metric_Gauge_Cursor  = "indexer.cursor"
	Metric_Gauge_SafeTip = "indexer.safeTip"

	Metric_Timing_SyncDuration = "indexer.sync.duration"
	Metric_Timing_HttpDuration = "rpc.http.duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name: Metric_Incr_SyncRun,
			Labels: []string{
				"status",
			},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_BlocksScanned,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_SpanShrunk,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name: Metric_Incr_EventsApplied,
			Labels: []string{
				"event",
			},
		},
		MetricsTypeConfig{
			Name: Metric_Incr_EventsSkipped,
			Labels: []string{
				"reason",
			},
		},
		MetricsTypeConfig{
			Name: Metric_Incr_HttpRequest,
			Labels: []string{
				"method",
				"path",
				"status_code",
			},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_Cursor,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_SafeTip,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name: Metric_Timing_SyncDuration,
			Labels: []string{
				"status",
			},
		},
		MetricsTypeConfig{
			Name: Metric_Timing_HttpDuration,
			Labels: []string{
				"method",
				"path",
				"status_code",
			},
		},
	},
}
