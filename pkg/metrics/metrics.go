// Package metrics fans metric writes out to every configured client.
package metrics

import (
	"errors"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics/dogstatsd"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics/metricsTypes"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics/prometheus"
	promClient "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type MetricsSinkConfig struct {
	DefaultLabels []metricsTypes.MetricsLabel
}

type MetricsSink struct {
	config  *MetricsSinkConfig
	clients []metricsTypes.IMetricsClient
}

func NewMetricsSink(cfg *MetricsSinkConfig, clients []metricsTypes.IMetricsClient) (*MetricsSink, error) {
	return &MetricsSink{
		config:  cfg,
		clients: clients,
	}, nil
}

func (ms *MetricsSink) withDefaultLabels(labels []metricsTypes.MetricsLabel) []metricsTypes.MetricsLabel {
	if len(ms.config.DefaultLabels) == 0 {
		return labels
	}
	return append(append([]metricsTypes.MetricsLabel{}, ms.config.DefaultLabels...), labels...)
}

// Incr writes to every client. All clients are attempted even when one fails.
func (ms *MetricsSink) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	var errs []error
	for _, client := range ms.clients {
		if err := client.Incr(name, ms.withDefaultLabels(labels), value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ms *MetricsSink) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	var errs []error
	for _, client := range ms.clients {
		if err := client.Gauge(name, value, ms.withDefaultLabels(labels)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ms *MetricsSink) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	var errs []error
	for _, client := range ms.clients {
		if err := client.Timing(name, value, ms.withDefaultLabels(labels)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ms *MetricsSink) Flush() {
	for _, client := range ms.clients {
		client.Flush()
	}
}

// InitMetricsSinksFromConfig builds the clients enabled in cfg. The prometheus
// client registers on registerer.
func InitMetricsSinksFromConfig(cfg *config.Config, registerer promClient.Registerer, l *zap.Logger) ([]metricsTypes.IMetricsClient, error) {
	clients := make([]metricsTypes.IMetricsClient, 0)

	if cfg.DataDogConfig.StatsdConfig.Enabled {
		dd, err := dogstatsd.NewDogStatsdMetricsClient(&dogstatsd.DogStatsdConfig{
			Url: cfg.DataDogConfig.StatsdConfig.Url,
		}, l)
		if err != nil {
			l.Sugar().Errorw("Failed to create dogstatsd client", zap.Error(err))
			return nil, err
		}
		clients = append(clients, dd)
	}

	if cfg.PrometheusConfig.Enabled {
		pm, err := prometheus.NewPrometheusMetricsClient(&prometheus.PrometheusMetricsConfig{
			Metrics:    metricsTypes.MetricTypes,
			Registerer: registerer,
		}, l)
		if err != nil {
			l.Sugar().Errorw("Failed to create prometheus client", zap.Error(err))
			return nil, err
		}
		clients = append(clients, pm)
	}
	return clients, nil
}
