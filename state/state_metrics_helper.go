package state

import (
	"context"

	"github.com/Darkness4/bili-auto-quality/poller"
	"github.com/Darkness4/bili-auto-quality/telemetry/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// setStateMetrics demuxes the state to the metrics.
func setStateMetrics(
	ctx context.Context,
	name string,
	state poller.State,
	labels map[string]string,
) {
	attrs := make([]attribute.KeyValue, 0, len(labels)+1)
	attrs = append(attrs, attribute.String("page", name))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	m := metrics.Poller.State
	m.Record(
		ctx,
		1,
		metric.WithAttributes(append(attrs, attribute.String("state", state.String()))...),
	)
	// Remove the rest of the states from the metrics.
	for i := poller.StateIdle; i <= poller.StateCanceled; i++ {
		if i != state {
			m.Record(
				ctx,
				0,
				metric.WithAttributes(append(attrs, attribute.String("state", i.String()))...),
			)
		}
	}
}
