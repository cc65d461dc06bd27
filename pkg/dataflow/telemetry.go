package dataflow

import (
	"sync"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	tracer = otel.Tracer("dflow.dataflow")
	meter  = otel.Meter("dflow.dataflow")
)

type instruments struct {
	invocations  metric.Int64Counter
	exchanged    metric.Int64Counter
	roundLatency metric.Float64Histogram
}

var (
	instrumentsOnce sync.Once
	globalInstr     instruments
)

// getInstruments initializes the metrics once. Instruments that fail to initialize are replaced by
// no-ops and the failure is logged.
func getInstruments(log logr.Logger) *instruments {
	instrumentsOnce.Do(func() {
		var err error

		globalInstr.invocations, err = meter.Int64Counter("dflow_operator_invocations_total",
			metric.WithDescription("Number of operator callback invocations"))
		if err != nil {
			log.Error(err, "failed to initialize metric", "metric", "dflow_operator_invocations_total")
			globalInstr.invocations = noop.Int64Counter{}
		}

		globalInstr.exchanged, err = meter.Int64Counter("dflow_exchanged_records_total",
			metric.WithDescription("Number of records moved to another worker by an exchange"))
		if err != nil {
			log.Error(err, "failed to initialize metric", "metric", "dflow_exchanged_records_total")
			globalInstr.exchanged = noop.Int64Counter{}
		}

		globalInstr.roundLatency, err = meter.Float64Histogram("dflow_round_duration_seconds",
			metric.WithDescription("Time spent processing one logical time"),
			metric.WithUnit("s"))
		if err != nil {
			log.Error(err, "failed to initialize metric", "metric", "dflow_round_duration_seconds")
			globalInstr.roundLatency = noop.Float64Histogram{}
		}
	})
	return &globalInstr
}
