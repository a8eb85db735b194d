package models

import (
	"strings"
	"time"
)

// AuditAction names a job lifecycle event published for the accounting ledger.
type AuditAction string

const (
	AuditJobInitiated AuditAction = "INITIATED"
	AuditJobConfirmed AuditAction = "CONFIRMED"
	AuditJobCompleted AuditAction = "COMPLETED"
	AuditJobFailed    AuditAction = "FAILED"
	AuditJobCancelled AuditAction = "CANCELLED"
	AuditJobRetried   AuditAction = "RETRIED"
)

type AuditEvent struct {
	Action         AuditAction    `json:"action"`
	JobID          string         `json:"jobId"`
	OrganizationID string         `json:"organizationId"`
	JobType        JobType        `json:"jobType"`
	Detail         map[string]any `json:"detail,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// RoutingKey is the topic the event is published under, e.g. "ingestion.file_upload.completed".
func (e AuditEvent) RoutingKey() string {
	return "ingestion." + strings.ToLower(string(e.JobType)) + "." + strings.ToLower(string(e.Action))
}
