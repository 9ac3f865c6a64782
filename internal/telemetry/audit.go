package telemetry

import (
	"context"
	"log"
	"time"
)

// Publisher publishes audit events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit records for account operations: signups,
// logins and their failures.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

// AuditRecord is the flat audit message shipped to the broker. Actor is the
// acting user's email when known.
type AuditRecord struct {
	SchemaVersion int     `json:"schema_version"`
	Kind          string  `json:"kind"`
	At            string  `json:"at"`
	Service       string  `json:"service"`
	Environment   string  `json:"environment"`
	RequestID     string  `json:"request_id"`
	Actor         *string `json:"actor,omitempty"`
	Level         string  `json:"level"`
	Message       string  `json:"message"`
}

// NewAuditEmitter constructs an emitter stamping every record with the
// service name and environment.
func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit record. Safe to call on a nil emitter.
func (e *AuditEmitter) Emit(ctx context.Context, level, message, requestID string, actor *string) {
	if e == nil || e.publisher == nil {
		return
	}

	record := AuditRecord{
		SchemaVersion: 1,
		Kind:          "audit",
		At:            time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Actor:         actor,
		Level:         level,
		Message:       message,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, record); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
