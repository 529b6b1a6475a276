package core

import (
	"context"
	"strings"
)

const (
	metricPrefix = "authclient."

	MetricStorePersistFailed = metricPrefix + "store.persist_failed"
	MetricDispatchResent     = metricPrefix + "dispatch.resent"
	MetricRefreshWaiters     = metricPrefix + "refresh.waiters"
)

// OperationCounterName is the counter incremented once per observed operation.
func OperationCounterName(operation string) string {
	return metricPrefix + normalizeOperation(operation) + ".total"
}

// OperationDurationName is the histogram of operation latency in milliseconds.
func OperationDurationName(operation string) string {
	return metricPrefix + normalizeOperation(operation) + ".duration_ms"
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// MultiMetricsRecorder fans every sample out to each non-nil recorder.
type MultiMetricsRecorder []MetricsRecorder

func (m MultiMetricsRecorder) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	for _, recorder := range m {
		if recorder != nil {
			recorder.IncCounter(ctx, name, value, cloneTags(tags))
		}
	}
}

func (m MultiMetricsRecorder) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	for _, recorder := range m {
		if recorder != nil {
			recorder.ObserveHistogram(ctx, name, value, cloneTags(tags))
		}
	}
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		if key = strings.TrimSpace(key); key != "" {
			copied[key] = value
		}
	}
	return copied
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ MetricsRecorder = MultiMetricsRecorder(nil)
)
