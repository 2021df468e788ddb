package bus

import (
	"context"
	"fmt"
	"time"

	"orchard/internal/contracts"

	"github.com/google/uuid"
)

// Stream topology. Events are broadcast on one stream; each step service
// owns a command stream. Deliveries that exhaust their retry budget are
// parked on the dead-letter stream.
const (
	EventsStream     = "orchard.events"
	DeadLetterStream = "orchard.dead"

	commandStreamPrefix = "orchard.commands."
)

// CommandStream returns the stream a command destination maps to.
func CommandStream(destination string) string {
	return commandStreamPrefix + destination
}

// Publisher is the outbound half of the bus gateway.
type Publisher interface {
	PublishEvent(ctx context.Context, evt contracts.Event) error
	SendCommand(ctx context.Context, cmd contracts.Command) error
}

// Handler processes one delivery. Returning an error leaves the delivery
// unacknowledged so the bus redelivers it with backoff.
type Handler func(ctx context.Context, env contracts.Envelope) error

// Stream entry field names.
const (
	fieldKind        = "kind"
	fieldCorrelation = "correlation_id"
	fieldOccurredAt  = "occurred_at"
	fieldPayload     = "payload"
)

// streamValues flattens an envelope into stream entry fields.
func streamValues(env contracts.Envelope) map[string]any {
	return map[string]any{
		fieldKind:        env.Kind,
		fieldCorrelation: env.CorrelationID.String(),
		fieldOccurredAt:  env.OccurredAt.UTC().Format(time.RFC3339Nano),
		fieldPayload:     string(env.Payload),
	}
}

// envelopeFromValues rebuilds an envelope from stream entry fields.
func envelopeFromValues(values map[string]any) (contracts.Envelope, error) {
	var env contracts.Envelope

	kind, ok := values[fieldKind].(string)
	if !ok || kind == "" {
		return env, fmt.Errorf("stream entry missing %s field", fieldKind)
	}
	env.Kind = kind

	rawID, ok := values[fieldCorrelation].(string)
	if !ok {
		return env, fmt.Errorf("stream entry missing %s field", fieldCorrelation)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return env, fmt.Errorf("parse %s: %w", fieldCorrelation, err)
	}
	env.CorrelationID = id

	if rawAt, ok := values[fieldOccurredAt].(string); ok && rawAt != "" {
		at, err := time.Parse(time.RFC3339Nano, rawAt)
		if err != nil {
			return env, fmt.Errorf("parse %s: %w", fieldOccurredAt, err)
		}
		env.OccurredAt = at
	}

	payload, ok := values[fieldPayload].(string)
	if !ok {
		return env, fmt.Errorf("stream entry missing %s field", fieldPayload)
	}
	env.Payload = []byte(payload)

	return env, nil
}
