package wssession

import (
	"context"
	"fmt"

	"github.com/gbdevw/gowsserver/wsframe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Package private decorator used to trace user provided callbacks
type handlerInstrumentationDecorator struct {
	// Tracer used to instrument code
	tracer trace.Tracer
	// Decorated Handler implementation
	decorated Handler
}

// # Description
//
// Build and return a new decorator which instruments a provided Handler implementation.
//
// # Inputs
//
//   - decorated: The Handler implementation to decorate. Must not be nil.
//   - tracerProvider: Tracer provider used to get a tracer. If nil, global tracer provider will be used.
//
// # Returns
//
// A new instrumentation decorator for the provided Handler implementation or an error if decorated
// is nil.
func NewHandlerInstrumentationDecorator(decorated Handler, tracerProvider trace.TracerProvider) (*handlerInstrumentationDecorator, error) {
	if decorated == nil {
		return nil, fmt.Errorf("provided decorated is nil")
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &handlerInstrumentationDecorator{
		decorated: decorated,
		tracer:    tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}, nil
}

// Instrument decorated.OnRead call
func (decorator *handlerInstrumentationDecorator) OnRead(ctx context.Context, session *Session, opcode wsframe.Opcode, data []byte) {
	ctx, span := decorator.tracer.Start(ctx, spanOnRead,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, session.ID()),
			attribute.String(attrOpcode, opcode.String()),
			attribute.Int(attrLength, len(data)),
		))
	defer span.End()
	defer span.SetStatus(codes.Ok, codes.Ok.String())
	decorator.decorated.OnRead(ctx, session, opcode, data)
}

// Instrument decorated.OnClose call
func (decorator *handlerInstrumentationDecorator) OnClose(ctx context.Context, session *Session) {
	ctx, span := decorator.tracer.Start(ctx, spanOnClose,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, session.ID()),
		))
	defer span.End()
	defer span.SetStatus(codes.Ok, codes.Ok.String())
	decorator.decorated.OnClose(ctx, session)
}
