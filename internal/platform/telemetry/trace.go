// Package telemetry wraps OpenTelemetry span creation for service
// operations. The voting path is the main consumer: each protocol step
// gets a span so a stuck submission can be traced across OTP issue,
// verification and the final write.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a span for a service operation.
//
//	ctx, span := telemetry.StartSpan(ctx, "sabha/voting", "voting.SubmitVote",
//	    attribute.String(telemetry.AttrElectionID, electionID.String()),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks the span failed. Nil is a
// no-op so callers can defer it against a named return.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Attribute keys shared across services.
const (
	AttrElectionID = "election.id"
	AttrMemberID   = "member.id"
	AttrVoteID     = "vote.id"
	AttrPosition   = "ballot.position"
	AttrOutcome    = "operation.outcome"
)
