// Package audit captures key platform actions as transport-agnostic events.
// Events fan out to a durable store and, when configured, a Kafka topic.
package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic. Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	// Actor is the wallet address that initiated the action, hex-encoded.
	Actor string `json:"actor,omitempty"`
	// Subject identifies what was acted on: an applicant address or a
	// property ID rendered as text.
	Subject string `json:"subject,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// TxHash correlates the event with the confirmed ledger transaction.
	TxHash    string `json:"tx_hash,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventApplicationSubmitted AuditEvent = "application_submitted"
	EventApplicationApproved  AuditEvent = "application_approved"
	EventApplicationRejected  AuditEvent = "application_rejected"
	EventApplicationWithdrawn AuditEvent = "application_withdrawn"
	EventUnsyncedCleared      AuditEvent = "unsynced_cleared"
	EventReconciliationGap    AuditEvent = "reconciliation_gap"

	EventPropertyCreated AuditEvent = "property_created"
	EventYieldDeposited  AuditEvent = "yield_deposited"
	EventYieldClaimed    AuditEvent = "yield_claimed"
	EventProjectClosed   AuditEvent = "project_closed"
)

// Store persists events durably.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
