package otelhelper

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorKindKey holds the classification of errors that expose one.
const ErrorKindKey = "petflow.error.kind"

type kindedError interface {
	ErrorKind() string
}

// SetError records err on the span and marks it failed. A nil err leaves the span untouched.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	var kinded kindedError
	if errors.As(err, &kinded) {
		attrs = append(attrs, attribute.String(ErrorKindKey, kinded.ErrorKind()))
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
