package middleware

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/kvguard/domain/middleware"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
)

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// TracerName is the name of the tracer to use.
	TracerName string

	// Tracer is a custom tracer to use. If nil, one is obtained from the
	// global provider.
	Tracer trace.Tracer

	// RecordInput determines if action input is recorded as a span attribute.
	RecordInput bool

	// RecordOutput determines if action output is recorded as a span attribute.
	RecordOutput bool

	// MaxAttributeSize limits the size of recorded attributes.
	MaxAttributeSize int

	// SpanNamePrefix is prepended to span names.
	SpanNamePrefix string

	// AdditionalAttributes are added to all spans.
	AdditionalAttributes []attribute.KeyValue
}

// DefaultTracingConfig returns the default configuration. Inputs are not
// recorded since actions such as sign-in carry credentials.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName:       "kvguard",
		MaxAttributeSize: 1024,
		SpanNamePrefix:   "action.",
	}
}

// Tracing returns middleware that creates OpenTelemetry spans for actions.
// Rate-limit rejections are recorded as span events, not errors.
func Tracing(cfg TracingConfig) middleware.Middleware {
	tracer := cfg.Tracer
	if tracer == nil {
		tracerName := cfg.TracerName
		if tracerName == "" {
			tracerName = "kvguard"
		}
		tracer = otel.Tracer(tracerName)
	}

	maxSize := cfg.MaxAttributeSize
	if maxSize <= 0 {
		maxSize = 1024
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, action *middleware.ActionContext) (middleware.Result, error) {
			ctx, span := tracer.Start(ctx, cfg.SpanNamePrefix+action.Action,
				trace.WithSpanKind(trace.SpanKindInternal))
			defer span.End()

			attrs := []attribute.KeyValue{
				attribute.String("action.name", action.Action),
				attribute.String("action.caller", action.Caller),
				attribute.Bool("action.cacheable", action.Cacheable),
			}
			for k, v := range action.Metadata {
				attrs = append(attrs, attribute.String("action.meta."+k, truncate(v, maxSize)))
			}
			if cfg.RecordInput && len(action.Input) > 0 {
				attrs = append(attrs, attribute.String("action.input", truncate(string(action.Input), maxSize)))
			}
			attrs = append(attrs, cfg.AdditionalAttributes...)
			span.SetAttributes(attrs...)

			result, err := next(ctx, action)

			var exceeded *ratelimit.ExceededError
			switch {
			case errors.As(err, &exceeded):
				span.AddEvent("rate_limited", trace.WithAttributes(
					attribute.String("ratelimit.key", exceeded.Key),
					attribute.Int64("ratelimit.retry_after_ms", exceeded.RetryAfter.Milliseconds()),
				))
				span.SetStatus(codes.Unset, "")
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			default:
				span.SetStatus(codes.Ok, "")
				if cfg.RecordOutput && len(result.Output) > 0 {
					span.SetAttributes(attribute.String("action.output", truncate(string(result.Output), maxSize)))
				}
				span.SetAttributes(
					attribute.Int64("action.duration_ms", result.Duration.Milliseconds()),
					attribute.Bool("action.cached", result.Cached),
				)
			}

			return result, err
		}
	}
}

// TracingOption configures the tracing middleware.
type TracingOption func(*TracingConfig)

// WithTracer sets a custom tracer.
func WithTracer(tracer trace.Tracer) TracingOption {
	return func(c *TracingConfig) {
		c.Tracer = tracer
	}
}

// WithInputRecording enables or disables input recording.
func WithInputRecording(enabled bool) TracingOption {
	return func(c *TracingConfig) {
		c.RecordInput = enabled
	}
}

// WithOutputRecording enables or disables output recording.
func WithOutputRecording(enabled bool) TracingOption {
	return func(c *TracingConfig) {
		c.RecordOutput = enabled
	}
}

// WithSpanNamePrefix sets the span name prefix.
func WithSpanNamePrefix(prefix string) TracingOption {
	return func(c *TracingConfig) {
		c.SpanNamePrefix = prefix
	}
}

// WithAdditionalAttributes adds extra attributes to all spans.
func WithAdditionalAttributes(attrs ...attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.AdditionalAttributes = append(c.AdditionalAttributes, attrs...)
	}
}

// NewTracing creates tracing middleware with the given options.
func NewTracing(opts ...TracingOption) middleware.Middleware {
	cfg := DefaultTracingConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return Tracing(cfg)
}

// truncate truncates a string to the specified length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...[truncated]"
}
