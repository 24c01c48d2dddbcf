package kernel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope for kernel metrics.
const MeterName = "nucleus/kernel"

// Metrics holds the kernel's instruments.
type Metrics struct {
	Ticks           metric.Int64Counter
	ContextSwitches metric.Int64Counter
	Wakeups         metric.Int64Counter
	TasksCreated    metric.Int64Counter
	TasksDeleted    metric.Int64Counter
	LiveTasks       metric.Int64UpDownCounter
	EventsDropped   metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Ticks, err = meter.Int64Counter("kernel.ticks",
		metric.WithDescription("Timer ticks dispatched"),
	)
	if err != nil {
		return nil, err
	}

	m.ContextSwitches, err = meter.Int64Counter("kernel.context_switches",
		metric.WithDescription("Context transfers between tasks"),
	)
	if err != nil {
		return nil, err
	}

	m.Wakeups, err = meter.Int64Counter("kernel.wakeups",
		metric.WithDescription("Sleeping tasks made Ready by the tick dispatcher"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCreated, err = meter.Int64Counter("kernel.tasks.created",
		metric.WithDescription("Tasks created"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksDeleted, err = meter.Int64Counter("kernel.tasks.deleted",
		metric.WithDescription("Tasks deleted"),
	)
	if err != nil {
		return nil, err
	}

	m.LiveTasks, err = meter.Int64UpDownCounter("kernel.tasks.live",
		metric.WithDescription("Tasks currently in the TCB table"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsDropped, err = meter.Int64Counter("kernel.events.dropped",
		metric.WithDescription("Diagnostics dropped because the event queue was full"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(MeterName))
	return m
}
