package store

import (
	"context"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

// AspectEnvelope is one (urn, aspect, value) unit moving through the ingest
// pipeline: hook inputs/outputs, default-aspect generation, list results.
type AspectEnvelope struct {
	Urn        domain.Urn
	AspectName string
	Value      domain.AspectValue
	Metadata   *domain.SystemMetadata
}

// AspectIdentifier names one rolled-back (urn, aspect) pair.
type AspectIdentifier struct {
	Urn        domain.Urn
	AspectName string
}

// PreCommitHook runs inside the ingest transaction, after the primary write
// and its defaults have been applied. It may return additional changes to
// commit in the same transaction; an error aborts the whole ingest.
// Hook-produced changes do not re-trigger hooks.
type PreCommitHook func(ctx context.Context, changes []domain.ChangeEvent) ([]AspectEnvelope, error)

// PostCommitHook runs after the transaction has committed, receiving the
// resulting change events. Returned changes are ingested as follow-up
// writes; failures are logged and never propagate into the original commit.
type PostCommitHook func(ctx context.Context, events []domain.ChangeEvent) []AspectEnvelope
