// Package telemetry wires OpenTelemetry tracing for a journey engine
// process: a stdout span exporter by default, so every node
// execution's span is visible without standing up a collector, with
// the same shape a real OTLP exporter would slot into.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/lyzr/journeyengine/common/logger"
)

// Telemetry holds observability components: a tracer provider plus
// the pprof debug endpoint the teacher always exposes alongside it.
type Telemetry struct {
	log         *logger.Logger
	provider    *sdktrace.TracerProvider
	tracer      trace.Tracer
	meter       metric.Meter
	pprofAddr   string
	metricsAddr string

	nodeExecutions metric.Int64Counter
	journeySpawns  metric.Int64Counter
	journeyErrors  metric.Int64Counter
}

// New builds a Telemetry with a stdout span exporter. pprofPort and
// metricsPort become localhost addresses; a port of 0 is not treated
// specially, and only the pprof address is ever listened on (by Start).
func New(pprofPort, metricsPort int, log *logger.Logger) (*Telemetry, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: building stdout exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	meter := otel.Meter("journeyengine")
	nodeExecutions, err := meter.Int64Counter("journeyengine.node.executions",
		metric.WithDescription("node executions, by kind and verdict"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building node-execution counter: %w", err)
	}
	journeySpawns, err := meter.Int64Counter("journeyengine.journey.spawns",
		metric.WithDescription("journeys spawned from a campaign trigger"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building journey-spawn counter: %w", err)
	}
	journeyErrors, err := meter.Int64Counter("journeyengine.journey.errors",
		metric.WithDescription("journeys that ended in an unrecoverable error"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building journey-error counter: %w", err)
	}

	return &Telemetry{
		log:            log,
		provider:       provider,
		tracer:         provider.Tracer("journeyengine"),
		meter:          meter,
		pprofAddr:      fmt.Sprintf("localhost:%d", pprofPort),
		metricsAddr:    fmt.Sprintf("localhost:%d", metricsPort),
		nodeExecutions: nodeExecutions,
		journeySpawns:  journeySpawns,
		journeyErrors:  journeyErrors,
	}, nil
}

// Start starts the pprof debug endpoint. Metrics export (metricsAddr)
// is reserved for a Prometheus exporter; none of the pack's example
// repos wire one, so it is left as an address only, not a listener.
func (t *Telemetry) Start(ctx context.Context) error {
	go func() {
		t.log.Info("pprof server starting", "addr", t.pprofAddr)
		if err := http.ListenAndServe(t.pprofAddr, nil); err != nil {
			t.log.Error("pprof server error", "error", err)
		}
	}()
	return nil
}

// Shutdown flushes any buffered spans and releases the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// StartSpan starts a span for a node execution or other traced unit
// of work, named after the campaign/journey/node it belongs to. A nil
// *Telemetry (no telemetry configured) returns the span already live
// in ctx, or a no-op span if there is none, so callers never need a
// nil check of their own.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordDuration records operation duration as a structured log line,
// alongside (not instead of) the span timing above.
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	if t == nil {
		return
	}
	duration := time.Since(start)
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}

// RecordNodeExecution increments the node-execution counter, labeled
// by node kind and the verdict it produced.
func (t *Telemetry) RecordNodeExecution(ctx context.Context, nodeKind, verdict string) {
	if t == nil {
		return
	}
	t.nodeExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_kind", nodeKind),
		attribute.String("verdict", verdict),
	))
}

// RecordJourneySpawn increments the journey-spawn counter.
func (t *Telemetry) RecordJourneySpawn(ctx context.Context, campaignID string) {
	if t == nil {
		return
	}
	t.journeySpawns.Add(ctx, 1, metric.WithAttributes(attribute.String("campaign_id", campaignID)))
}

// RecordJourneyError increments the journey-error counter.
func (t *Telemetry) RecordJourneyError(ctx context.Context, campaignID string) {
	if t == nil {
		return
	}
	t.journeyErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("campaign_id", campaignID)))
}
