// Package metrics provides a way to record metrics.
package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/darkness4/bili-auto-quality"

var (
	// Poller metrics
	Poller struct {
		// Attempts is the number of read, select and apply attempts.
		Attempts metric.Int64Counter
		// Runs is the number of poller runs by terminal state.
		Runs metric.Int64Counter
		// TimeToApply is the time between the start of a run and the first accepted apply.
		TimeToApply metric.Float64Histogram
		// State is the current state of the poller of a page.
		State metric.Int64Gauge
	}

	// Player metrics
	Player struct {
		// Invocations is the number of quality method invocations by outcome.
		Invocations metric.Int64Counter
	}

	// Selection metrics
	Selection struct {
		// Selected is the number of times a quality was selected.
		Selected metric.Int64Counter
		// Fallbacks is the number of selections that fell back to the first available quality.
		Fallbacks metric.Int64Counter
	}
)

// The global provider delegates to the real one once it is set, so the
// instruments are usable before (and without) SetupOTELSDK.
func init() {
	InitMetrics(otel.GetMeterProvider())
}

// InitMetrics initializes the metrics.
func InitMetrics(provider metric.MeterProvider) {
	meter := provider.Meter(meterName)

	var err error
	Poller.Attempts, err = meter.Int64Counter(
		"poller.attempts",
		metric.WithDescription("Number of read, select and apply attempts"),
	)
	if err != nil {
		panic(err)
	}
	Poller.Runs, err = meter.Int64Counter(
		"poller.runs",
		metric.WithDescription("Number of poller runs by terminal state"),
	)
	if err != nil {
		panic(err)
	}
	Poller.TimeToApply, err = meter.Float64Histogram(
		"poller.time_to_apply",
		metric.WithDescription("Time taken until a quality method accepted the request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}
	Poller.State, err = meter.Int64Gauge(
		"poller.state",
		metric.WithDescription("Current state of the poller of a page"),
	)
	if err != nil {
		panic(err)
	}

	// Player
	Player.Invocations, err = meter.Int64Counter(
		"player.invocations",
		metric.WithDescription("Number of quality method invocations by outcome"),
	)
	if err != nil {
		panic(err)
	}

	// Selection
	Selection.Selected, err = meter.Int64Counter(
		"selection.selected",
		metric.WithDescription("Number of times a quality was selected"),
	)
	if err != nil {
		panic(err)
	}
	Selection.Fallbacks, err = meter.Int64Counter(
		"selection.fallbacks",
		metric.WithDescription("Number of selections falling back to the first available quality"),
	)
	if err != nil {
		panic(err)
	}
}
