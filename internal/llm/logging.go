package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"stepwise/internal/logger"
)

const instrumentationScope = "stepwise/internal/llm"

// LoggingProvider logs and traces every call of the wrapped provider.
type LoggingProvider struct {
	inner   Provider
	log     *logger.Logger
	tracer  trace.Tracer
	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

// WithLogging wraps p. Spans and metrics go to the global OTel providers.
func WithLogging(p Provider, log *logger.Logger) Provider {
	meter := otel.Meter(instrumentationScope)
	calls, _ := meter.Int64Counter("stepwise.llm.calls",
		metric.WithDescription("Model calls by purpose and outcome"))
	latency, _ := meter.Float64Histogram("stepwise.llm.latency",
		metric.WithDescription("Model call latency"), metric.WithUnit("ms"))
	return &LoggingProvider{
		inner:   p,
		log:     log.With("component", "llm", "model", p.ModelID()),
		tracer:  otel.Tracer(instrumentationScope),
		calls:   calls,
		latency: latency,
	}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	purpose := PurposeFrom(ctx)
	ctx, span := l.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.purpose", purpose),
		attribute.String("llm.model", l.inner.ModelID()),
	))
	defer span.End()

	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.Bool("success", err == nil),
	)
	if l.calls != nil {
		l.calls.Add(ctx, 1, attrs)
	}
	if l.latency != nil {
		l.latency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.log.Warn("model call failed", "purpose", purpose, "latency_ms", elapsed.Milliseconds(), "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
	)
	l.log.Info("model call",
		"purpose", purpose,
		"latency_ms", elapsed.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
	)
	return resp, nil
}

func (l *LoggingProvider) ModelID() string { return l.inner.ModelID() }
