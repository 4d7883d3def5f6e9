/**
 * @description
 * This file implements the audit side-channel for settlement operations. Audit
 * records are published to a RabbitMQ topic exchange so downstream compliance
 * tooling can consume them; when the broker is unavailable the record degrades
 * to a structured process log line.
 *
 * Contract: Emit never returns an error and never panics. A failing audit sink
 * must not abort a settlement, so publish failures are logged and swallowed.
 *
 * @dependencies
 * - context, encoding/json, log, strings, time: Standard Go libraries.
 * - pkg/rabbitmq: The event producer used as the observability sink.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nairagate/onramp-service/pkg/rabbitmq"
)

// Audit event names emitted by the settlement flow.
const (
	AuditOnrampInitiated = "ONRAMP_INITIATED"
	AuditOnrampRejected  = "ONRAMP_REJECTED"
	AuditOnrampFailed    = "ONRAMP_FAILED"
)

// AuditExchange is the durable topic exchange audit records are published to.
const AuditExchange = "onramp.events"

// AuditRecord is the structured payload written to the observability sink.
type AuditRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
}

// AuditLogger emits structured audit records for settlement operations.
type AuditLogger struct {
	producer rabbitmq.Publisher
}

// NewAuditLogger creates an AuditLogger backed by the given producer. A nil
// producer is valid; records then go to the process log only.
func NewAuditLogger(producer rabbitmq.Publisher) *AuditLogger {
	return &AuditLogger{producer: producer}
}

// Emit publishes one audit record. It swallows every failure: the routing key
// is derived from the event name (audit.settlement.onramp_initiated etc.).
func (a *AuditLogger) Emit(ctx context.Context, event string, payload map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("level=error component=audit msg=\"audit emit panicked\" event=%s panic=%v", event, r)
		}
	}()

	record := AuditRecord{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Payload:   payload,
	}

	if a == nil || a.producer == nil {
		logAuditRecord(record)
		return
	}

	routingKey := "audit.settlement." + strings.ToLower(event)
	if err := a.producer.Publish(ctx, AuditExchange, routingKey, record); err != nil {
		log.Printf("level=warn component=audit msg=\"audit publish failed; falling back to process log\" event=%s err=%v", event, err)
		logAuditRecord(record)
	}
}

func logAuditRecord(record AuditRecord) {
	encoded, err := json.Marshal(record.Payload)
	if err != nil {
		encoded = []byte("{}")
	}
	log.Printf("level=info component=audit event=%s payload=%s", record.Event, encoded)
}
