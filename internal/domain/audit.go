package domain

import "time"

// AuditStamp records who caused a version transition and when. Immutable
// once written.
type AuditStamp struct {
	Time         int64  `json:"time"`
	Actor        string `json:"actor"`
	Impersonator string `json:"impersonator,omitempty"`
}

func NewAuditStamp(actor Urn) AuditStamp {
	return AuditStamp{Time: time.Now().UTC().UnixMilli(), Actor: actor.String()}
}

// SystemMetadata is per-aspect-version bookkeeping. RunID scopes rollback;
// LastObserved supports idempotent re-ingestion (no-op writes refresh it
// without bumping history).
type SystemMetadata struct {
	RunID           string            `json:"runId,omitempty"`
	LastObserved    int64             `json:"lastObserved,omitempty"`
	RegistryName    string            `json:"registryName,omitempty"`
	RegistryVersion string            `json:"registryVersion,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
}

func NewSystemMetadata(runID string) *SystemMetadata {
	return &SystemMetadata{RunID: runID, LastObserved: time.Now().UTC().UnixMilli()}
}

func (m *SystemMetadata) Clone() *SystemMetadata {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Properties != nil {
		cp.Properties = make(map[string]string, len(m.Properties))
		for k, v := range m.Properties {
			cp.Properties[k] = v
		}
	}
	return &cp
}
