package domain

import "encoding/json"

// ChangeType is the operation kind of a change proposal.
type ChangeType string

const (
	ChangeCreate       ChangeType = "CREATE"
	ChangeCreateEntity ChangeType = "CREATE_ENTITY"
	ChangeUpsert       ChangeType = "UPSERT"
	ChangePatch        ChangeType = "PATCH"
	ChangeDelete       ChangeType = "DELETE"
)

// ChangeProposal is the store's ingest input, produced by the out-of-scope
// ingestion layer.
type ChangeProposal struct {
	EntityUrn       Urn             `json:"entityUrn"`
	EntityType      string          `json:"entityType"`
	AspectName      string          `json:"aspectName"`
	ChangeType      ChangeType      `json:"changeType"`
	Aspect          json.RawMessage `json:"aspect,omitempty"`
	EntityKeyAspect json.RawMessage `json:"entityKeyAspect,omitempty"`
	SystemMetadata  *SystemMetadata `json:"systemMetadata,omitempty"`
}

// ChangeEvent is the store's post-commit output: a before/after record of
// one aspect transition. Emitted at-least-once, never before the
// transaction commits.
type ChangeEvent struct {
	Urn               Urn             `json:"urn"`
	AspectName        string          `json:"aspectName"`
	Operation         ChangeType      `json:"operation"`
	OldValue          AspectValue     `json:"-"`
	NewValue          AspectValue     `json:"-"`
	OldSystemMetadata *SystemMetadata `json:"oldSystemMetadata,omitempty"`
	NewSystemMetadata *SystemMetadata `json:"newSystemMetadata,omitempty"`
	Audit             AuditStamp      `json:"audit"`
}
