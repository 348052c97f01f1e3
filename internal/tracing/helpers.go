// Package tracing provides OpenTelemetry distributed tracing setup and utilities.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ChainOperation represents the type of audit chain operation being traced.
type ChainOperation string

const (
	// ChainOperationRecord traces one record call, including CAS retries.
	ChainOperationRecord ChainOperation = "record"
	// ChainOperationVerify traces an integrity verification run.
	ChainOperationVerify ChainOperation = "verify"
	// ChainOperationQuery traces a filtered range read.
	ChainOperationQuery ChainOperation = "query"
	// ChainOperationExport traces a compliance export.
	ChainOperationExport ChainOperation = "export"
	// ChainOperationArchive traces an artifact upload to object storage.
	ChainOperationArchive ChainOperation = "archive"
)

// StartChainSpan creates a new span for an audit chain operation.
// Returns the new context and a function to end the span.
//
// Example usage:
//
//	ctx, endSpan := tracing.StartChainSpan(ctx, tracing.ChainOperationVerify)
//	defer endSpan(err)
func StartChainSpan(ctx context.Context, operation ChainOperation) (context.Context, func(error)) {
	tracer := otel.Tracer("audittrail/chain")

	ctx, span := tracer.Start(ctx, "audit."+string(operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("audit.operation", string(operation)),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
