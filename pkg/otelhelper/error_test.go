package otelhelper

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type scheduleError struct{}

func (scheduleError) Error() string     { return "redis unavailable" }
func (scheduleError) ErrorKind() string { return "SchedulingError" }

func recordSpan(t *testing.T, err error) sdktrace.ReadOnlySpan {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(t.Context(), provider.Tracer("test"), "step.process", attribute.String(StepIDKey, "wait"))
	SetError(span, err, attribute.String(ExecutionIDKey, "exec-1"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	return spans[0]
}

func eventAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	attrs := make(map[attribute.Key]string)

	for _, event := range span.Events() {
		for _, kv := range event.Attributes {
			attrs[kv.Key] = kv.Value.Emit()
		}
	}

	return attrs
}

func TestSetError(t *testing.T) {
	span := recordSpan(t, fmt.Errorf("step wait: %w", scheduleError{}))

	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "step wait: redis unavailable", span.Status().Description)

	attrs := eventAttributes(span)
	assert.Equal(t, "SchedulingError", attrs[ErrorKindKey])
	assert.Equal(t, "exec-1", attrs[ExecutionIDKey])
}

func TestSetErrorWithoutKind(t *testing.T) {
	span := recordSpan(t, errors.New("boom"))

	assert.Equal(t, codes.Error, span.Status().Code)
	assert.NotContains(t, eventAttributes(span), attribute.Key(ErrorKindKey))
}

func TestSetErrorIgnoresNil(t *testing.T) {
	span := recordSpan(t, nil)

	assert.Equal(t, codes.Unset, span.Status().Code)
	assert.Empty(t, span.Events())
}
