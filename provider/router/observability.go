package router

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/voicebridge/provider/router"

// instruments OTel 埋点。全局 provider 未初始化时均为 noop。
type instruments struct {
	tracer trace.Tracer

	attemptTotal  metric.Int64Counter
	fallbackTotal metric.Int64Counter
	skipTotal     metric.Int64Counter
	callDuration  metric.Float64Histogram
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	// 创建失败时保持 nil，调用处判空
	in.attemptTotal, _ = meter.Int64Counter("voicebridge.router.attempt.total",
		metric.WithDescription("Provider attempts made by the router"),
		metric.WithUnit("{attempt}"))
	in.fallbackTotal, _ = meter.Int64Counter("voicebridge.router.fallback.total",
		metric.WithDescription("Calls that moved on to a fallback provider"),
		metric.WithUnit("{fallback}"))
	in.skipTotal, _ = meter.Int64Counter("voicebridge.router.skip.total",
		metric.WithDescription("Providers skipped because their breaker was open"),
		metric.WithUnit("{skip}"))
	in.callDuration, _ = meter.Float64Histogram("voicebridge.router.call.duration",
		metric.WithDescription("Logical router call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	return in
}

func (in *instruments) attempt(ctx context.Context, provider, outcome string) {
	if in.attemptTotal != nil {
		in.attemptTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("outcome", outcome),
		))
	}
}

func (in *instruments) fallback(ctx context.Context, from, to string) {
	if in.fallbackTotal != nil {
		in.fallbackTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		))
	}
}

func (in *instruments) skip(ctx context.Context, provider string) {
	if in.skipTotal != nil {
		in.skipTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
}

func (in *instruments) duration(ctx context.Context, op string, d time.Duration, ok bool) {
	if in.callDuration != nil {
		in.callDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("operation", op),
			attribute.Bool("success", ok),
		))
	}
}
