package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/dunefetch/dunefetch/internal/config"
)

// PushMetrics sends the default registry to a Prometheus pushgateway. It is a
// no-op when no push URL is configured.
func PushMetrics(ctx context.Context, cfg config.MetricsConfig) error {
	url := strings.TrimSpace(cfg.PushURL)
	if url == "" {
		return nil
	}
	job := strings.TrimSpace(cfg.JobName)
	if job == "" {
		job = "dunefetch"
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
