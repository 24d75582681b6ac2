package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fhs/ra-lsp/internal/lsp/session"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	sessionsClosed metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"ralsp_request_duration_seconds",
			metric.WithDescription("Duration of requests sent to the language server"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"ralsp_request_total",
			metric.WithDescription("Requests sent to the language server by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sessionsClosed, err = meter.Int64Counter(
			"ralsp_session_closed_total",
			metric.WithDescription("Sessions closed by reason"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// outcome classifies a call result for metrics.
func outcome(err error) string {
	var serr *ServerError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &serr):
		return "server_error"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	}
	return "error"
}

func startRequestSpan(ctx context.Context, sessionID, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Session.Request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			attribute.String("lsp.session", sessionID),
		),
	)
}

func endRequestSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
	span.End()
}

func recordRequestMetrics(ctx context.Context, method string, duration time.Duration, err error) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome(err)),
	)
	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

func recordSessionClosed(reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	sessionsClosed.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
