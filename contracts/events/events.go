// Package events defines the wire schema for provisioning lifecycle events.
// It is a standalone module so downstream consumers can depend on the schema
// without importing the engine.
package events

import "time"

// Event types published by the engine.
const (
	TypeAllocationPlaced  = "allocation.placed"
	TypeBatchStarted      = "batch.started"
	TypeBatchCompleted    = "batch.completed"
	TypeDomainProvisioned = "domain.provisioned"
	TypeDomainFailed      = "domain.failed"
)

// Event is a single provisioning lifecycle notification. Fields that do not
// apply to a given type are left zero and omitted from the payload.
type Event struct {
	Type     string        `json:"type"`
	BatchID  string        `json:"batchId,omitempty"`
	Domain   string        `json:"domain,omitempty"`
	Category string        `json:"category,omitempty"`
	SiteID   string        `json:"siteId,omitempty"`
	Status   string        `json:"status,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Scope    string        `json:"scope,omitempty"`
	Summary  *BatchSummary `json:"summary,omitempty"`
	At       time.Time     `json:"at"`
}

// BatchSummary rides on batch.completed events.
type BatchSummary struct {
	Requested  int `json:"requested"`
	Admitted   int `json:"admitted"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}
