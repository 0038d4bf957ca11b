// Package observability wires OpenTelemetry traces, metrics, and
// structured log records for the kernel behind one
// Instruments/Init/shutdown lifecycle. log/slog remains the default
// sink for day-to-day diagnostic logging; the OTEL Logger here is
// reserved for the structured completion-event records that spec
// §4.4 asks the CLI Service to emit (label, status, cost, tokens,
// ms), mirrored as OTEL log records so a collector gets the same
// structured fields as counters/histograms. Everything exports via
// OTLP HTTP using the standard OTEL_EXPORTER_OTLP_ENDPOINT env vars.
package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/ductor/internal/observability"

// Instruments holds every OTEL instrument the kernel emits to, named
// after the observer and CLI Service events they track.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	CLIInvocations  metric.Int64Counter
	CLIDuration     metric.Float64Histogram
	CLICostTotal    metric.Float64Counter
	CLITokenUsage   metric.Int64Counter
	ProcessKills    metric.Int64Counter
	WebhookRequests metric.Int64Counter
	CronRuns        metric.Int64Counter
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters. Returns a shutdown function callable on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("ductor")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), lp.Shutdown(ctx))
	}
	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	cliInvocations, err := meter.Int64Counter("cli.invocations", metric.WithDescription("Total provider CLI invocations"))
	if err != nil {
		return nil, err
	}
	cliDuration, err := meter.Float64Histogram("cli.duration", metric.WithDescription("Provider CLI invocation duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	cliCost, err := meter.Float64Counter("cli.cost.total", metric.WithDescription("Cumulative provider cost"), metric.WithUnit("USD"))
	if err != nil {
		return nil, err
	}
	cliTokens, err := meter.Int64Counter("cli.tokens.usage", metric.WithDescription("Total tokens consumed"), metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}
	processKills, err := meter.Int64Counter("process.kills", metric.WithDescription("Process Registry kill operations"))
	if err != nil {
		return nil, err
	}
	webhookRequests, err := meter.Int64Counter("webhook.requests", metric.WithDescription("Webhook ingress requests"))
	if err != nil {
		return nil, err
	}
	cronRuns, err := meter.Int64Counter("cron.runs", metric.WithDescription("Cron job executions"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:          tracer,
		Meter:           meter,
		Logger:          logger,
		CLIInvocations:  cliInvocations,
		CLIDuration:     cliDuration,
		CLICostTotal:    cliCost,
		CLITokenUsage:   cliTokens,
		ProcessKills:    processKills,
		WebhookRequests: webhookRequests,
		CronRuns:        cronRuns,
	}, nil
}
