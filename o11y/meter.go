package o11y

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meter holds the package-level OTel meter used by metric recording functions.
var meter metric.Meter

// Pre-registered instruments. inputTokenCounter/outputTokenCounter/
// operationDuration/costGauge follow OTel GenAI semantic conventions and
// cover the Prompt Pipeline's real LLM token usage; the batch* instruments
// are domain-specific to the System Server's batching core.
var (
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	operationDuration  metric.Float64Histogram
	costGauge          metric.Float64Counter

	batchSizeHistogram    metric.Int64Histogram
	queueWaitHistogram    metric.Float64Histogram
	generateHistogram     metric.Float64Histogram
	battleGenerateHisto   metric.Float64Histogram

	meterOnce sync.Once
	meterErr  error
)

func init() {
	meter = otel.Meter("github.com/musicarena/fabric/o11y")
}

// initInstruments lazily creates the pre-defined metric instruments. This is
// deferred so callers can configure the meter provider before first use.
func initInstruments() error {
	meterOnce.Do(func() {
		var err error

		inputTokenCounter, err = meter.Int64Counter(
			"gen_ai.client.token.usage",
			metric.WithDescription("Number of tokens used by GenAI operations"),
			metric.WithUnit("{token}"),
		)
		if err != nil {
			meterErr = err
			return
		}

		outputTokenCounter, err = meter.Int64Counter(
			"gen_ai.client.token.usage.output",
			metric.WithDescription("Number of output tokens produced"),
			metric.WithUnit("{token}"),
		)
		if err != nil {
			meterErr = err
			return
		}

		operationDuration, err = meter.Float64Histogram(
			"gen_ai.client.operation.duration",
			metric.WithDescription("Duration of GenAI operations"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			meterErr = err
			return
		}

		costGauge, err = meter.Float64Counter(
			"gen_ai.client.estimated_cost",
			metric.WithDescription("Estimated cost of GenAI operations"),
			metric.WithUnit("USD"),
		)
		if err != nil {
			meterErr = err
			return
		}

		batchSizeHistogram, err = meter.Int64Histogram(
			"system_server.batch_size",
			metric.WithDescription("Number of requests coalesced into a single model invocation"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			meterErr = err
			return
		}

		queueWaitHistogram, err = meter.Float64Histogram(
			"system_server.queue_wait_ms",
			metric.WithDescription("Time a request spent queued before its batch was dispatched"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			meterErr = err
			return
		}

		generateHistogram, err = meter.Float64Histogram(
			"system_server.generate_ms",
			metric.WithDescription("Model invocation latency for a batch"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			meterErr = err
			return
		}

		battleGenerateHisto, err = meter.Float64Histogram(
			"gateway.battle_generate_ms",
			metric.WithDescription("End-to-end latency of a generate_battle request"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			meterErr = err
			return
		}
	})
	return meterErr
}

// InitMeter configures the package-level meter with the given service name.
// This should be called after setting up the OTel meter provider. If not called,
// the default global meter provider is used.
func InitMeter(serviceName string) error {
	meter = otel.Meter(
		"github.com/musicarena/fabric/o11y",
		metric.WithInstrumentationAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	// Reset so instruments are re-created with the new meter.
	meterOnce = sync.Once{}
	meterErr = nil
	return initInstruments()
}

// TokenUsage records the number of input and output tokens consumed by a
// GenAI operation.
func TokenUsage(ctx context.Context, input, output int) {
	if err := initInstruments(); err != nil {
		return
	}
	inputTokenCounter.Add(ctx, int64(input),
		metric.WithAttributes(attribute.String("gen_ai.token.type", "input")),
	)
	outputTokenCounter.Add(ctx, int64(output),
		metric.WithAttributes(attribute.String("gen_ai.token.type", "output")),
	)
}

// OperationDuration records the duration of a GenAI operation in milliseconds.
func OperationDuration(ctx context.Context, durationMs float64) {
	if err := initInstruments(); err != nil {
		return
	}
	operationDuration.Record(ctx, durationMs)
}

// Cost records the estimated monetary cost of a GenAI operation in USD.
func Cost(ctx context.Context, cost float64) {
	if err := initInstruments(); err != nil {
		return
	}
	costGauge.Add(ctx, cost)
}

// BatchSize records the number of requests coalesced into one model
// invocation on a System Server.
func BatchSize(ctx context.Context, modelWarm bool, size int) {
	if err := initInstruments(); err != nil {
		return
	}
	batchSizeHistogram.Record(ctx, int64(size),
		metric.WithAttributes(attribute.Bool("model_warm", modelWarm)),
	)
}

// QueueWait records how long, in milliseconds, a request waited in the
// System Server's queue before its batch was dispatched.
func QueueWait(ctx context.Context, waitMs float64) {
	if err := initInstruments(); err != nil {
		return
	}
	queueWaitHistogram.Record(ctx, waitMs)
}

// GenerateDuration records the model invocation latency, in milliseconds,
// for one batch on a System Server.
func GenerateDuration(ctx context.Context, durationMs float64) {
	if err := initInstruments(); err != nil {
		return
	}
	generateHistogram.Record(ctx, durationMs)
}

// BattleGenerateDuration records the Gateway's end-to-end generate_battle
// latency in milliseconds.
func BattleGenerateDuration(ctx context.Context, durationMs float64) {
	if err := initInstruments(); err != nil {
		return
	}
	battleGenerateHisto.Record(ctx, durationMs)
}

// Counter records an increment to a named counter metric.
func Counter(ctx context.Context, name string, value int64) {
	c, err := meter.Int64Counter(name)
	if err != nil {
		return
	}
	c.Add(ctx, value)
}

// Histogram records a value to a named histogram metric.
func Histogram(ctx context.Context, name string, value float64) {
	h, err := meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(ctx, value)
}
