package dogstatsd

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics/metricsTypes"
	"go.uber.org/zap"
)

const defaultNamespace = "marketplace_indexer."

type DogStatsdConfig struct {
	Url       string
	Namespace string
	// SampleRate applies to every metric. Defaults to 1.
	SampleRate float64
}

type DogStatsdMetricsClient struct {
	client *statsd.Client
	config *DogStatsdConfig
	logger *zap.Logger
}

func NewDogStatsdMetricsClient(cfg *DogStatsdConfig, l *zap.Logger) (*DogStatsdMetricsClient, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = defaultNamespace
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1
	}
	client, err := statsd.New(cfg.Url,
		statsd.WithNamespace(cfg.Namespace),
		statsd.WithoutTelemetry(),
		statsd.WithoutClientSideAggregation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}
	l.Sugar().Infow("Created dogstatsd client", zap.String("url", cfg.Url))
	return &DogStatsdMetricsClient{
		client: client,
		config: cfg,
		logger: l,
	}, nil
}

func formatTags(labels []metricsTypes.MetricsLabel) []string {
	tags := make([]string, 0, len(labels))
	for _, label := range labels {
		tags = append(tags, fmt.Sprintf("%s:%s", label.Name, label.Value))
	}
	return tags
}

func (dd *DogStatsdMetricsClient) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	return dd.client.Count(name, int64(value), formatTags(labels), dd.config.SampleRate)
}

func (dd *DogStatsdMetricsClient) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	return dd.client.Gauge(name, value, formatTags(labels), dd.config.SampleRate)
}

func (dd *DogStatsdMetricsClient) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	return dd.client.Timing(name, value, formatTags(labels), dd.config.SampleRate)
}

func (dd *DogStatsdMetricsClient) Flush() {
	if err := dd.client.Flush(); err != nil {
		dd.logger.Sugar().Warnw("Failed to flush statsd client", zap.Error(err))
	}
}
