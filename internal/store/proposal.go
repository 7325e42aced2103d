package store

import (
	"context"
	"fmt"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
	"github.com/yungbote/metagraph-backend/internal/registry"
)

// IngestProposal validates one change proposal against the entity schema
// and drives Ingest with the matching update function. Validation failures
// are pkgerrors.ErrInvalidArgument or pkgerrors.ErrUnsupported; they never
// consume a retry attempt.
func (s *EntityAspectStore) IngestProposal(ctx context.Context, proposal domain.ChangeProposal, audit domain.AuditStamp) (domain.AspectValue, error) {
	urn := proposal.EntityUrn
	if urn.IsZero() {
		return nil, fmt.Errorf("%w: proposal has no entity urn", pkgerrors.ErrInvalidArgument)
	}
	if proposal.EntityType != "" && proposal.EntityType != urn.EntityType() {
		return nil, fmt.Errorf("%w: proposal entity type %q does not match urn %s", pkgerrors.ErrInvalidArgument, proposal.EntityType, urn)
	}
	aspectName := proposal.AspectName
	if aspectName == "" {
		return nil, fmt.Errorf("%w: proposal has no aspect name", pkgerrors.ErrInvalidArgument)
	}
	aspectSpec, err := s.registry.AspectSpecFor(urn.EntityType(), aspectName)
	if err != nil {
		return nil, err
	}

	switch proposal.ChangeType {
	case domain.ChangeUpsert:
		value, err := decodeProposalAspect(proposal)
		if err != nil {
			return nil, err
		}
		return s.Ingest(ctx, urn, aspectName, func(domain.AspectValue) (domain.AspectValue, error) {
			return value, nil
		}, audit, proposal.SystemMetadata)

	case domain.ChangeCreate:
		if aspectSpec.Timeseries {
			return nil, fmt.Errorf("%w: timeseries aspect %q accepts only UPSERT", pkgerrors.ErrInvalidArgument, aspectName)
		}
		value, err := decodeProposalAspect(proposal)
		if err != nil {
			return nil, err
		}
		return s.Ingest(ctx, urn, aspectName, func(old domain.AspectValue) (domain.AspectValue, error) {
			// ErrConflict is reserved for write races the retry loop can
			// resolve; an already-present aspect never can be.
			if old != nil {
				return nil, fmt.Errorf("%w: aspect %q already exists for %s", pkgerrors.ErrInvalidArgument, aspectName, urn)
			}
			return value, nil
		}, audit, proposal.SystemMetadata)

	case domain.ChangeCreateEntity:
		if aspectSpec.Timeseries {
			return nil, fmt.Errorf("%w: timeseries aspect %q accepts only UPSERT", pkgerrors.ErrInvalidArgument, aspectName)
		}
		keyName, err := s.registry.KeyAspectName(urn.EntityType())
		if err != nil {
			return nil, err
		}
		value, err := decodeProposalAspect(proposal)
		if err != nil {
			return nil, err
		}
		existing, err := s.dao.GetLatest(ctx, urn.String(), keyName)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: entity %s already exists", pkgerrors.ErrInvalidArgument, urn)
		}
		return s.Ingest(ctx, urn, aspectName, func(domain.AspectValue) (domain.AspectValue, error) {
			return value, nil
		}, audit, proposal.SystemMetadata)

	case domain.ChangePatch:
		if aspectSpec.Timeseries {
			return nil, fmt.Errorf("%w: timeseries aspect %q accepts only UPSERT", pkgerrors.ErrInvalidArgument, aspectName)
		}
		if !registry.SupportsPatch(aspectName) {
			return nil, fmt.Errorf("%w: no merge template registered for aspect %q", pkgerrors.ErrUnsupported, aspectName)
		}
		if len(proposal.Aspect) == 0 {
			return nil, fmt.Errorf("%w: PATCH proposal carries no payload", pkgerrors.ErrInvalidArgument)
		}
		return s.Ingest(ctx, urn, aspectName, func(old domain.AspectValue) (domain.AspectValue, error) {
			return registry.ApplyPatch(aspectName, old, proposal.Aspect)
		}, audit, proposal.SystemMetadata)

	case domain.ChangeDelete:
		return nil, s.deleteAspect(ctx, urn, aspectName, audit)

	default:
		return nil, fmt.Errorf("%w: change type %q", pkgerrors.ErrInvalidArgument, proposal.ChangeType)
	}
}

// deleteAspect tombstones one aspect outright. Deleting the key aspect
// deletes the whole entity.
func (s *EntityAspectStore) deleteAspect(ctx context.Context, urn domain.Urn, aspectName string, audit domain.AuditStamp) error {
	keyName, err := s.registry.KeyAspectName(urn.EntityType())
	if err != nil {
		return err
	}

	var events []domain.ChangeEvent
	err = runInTransactionWithRetry(ctx, s.dao, s.maxRetries, s.log, func(tx AspectTx) error {
		events = events[:0]

		if aspectName == keyName {
			rows, err := tx.LatestForUrn(urn.String())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("%w: entity %s", pkgerrors.ErrNotFound, urn)
			}
			for _, row := range rows {
				oldValue, err := decodeRow(&row)
				if err != nil {
					return err
				}
				events = append(events, domain.ChangeEvent{
					Urn:               urn,
					AspectName:        row.Aspect,
					Operation:         domain.ChangeDelete,
					OldValue:          oldValue,
					OldSystemMetadata: row.Metadata,
					Audit:             audit,
				})
			}
			return tx.DeleteUrn(urn.String())
		}

		current, err := tx.GetLatest(urn.String(), aspectName)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: aspect %q of %s", pkgerrors.ErrNotFound, aspectName, urn)
		}
		oldValue, err := decodeRow(current)
		if err != nil {
			return err
		}
		events = append(events, domain.ChangeEvent{
			Urn:               urn,
			AspectName:        aspectName,
			Operation:         domain.ChangeDelete,
			OldValue:          oldValue,
			OldSystemMetadata: current.Metadata,
			Audit:             audit,
		})
		return tx.DeleteAspect(urn.String(), aspectName)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events)
	return nil
}

func decodeProposalAspect(proposal domain.ChangeProposal) (domain.AspectValue, error) {
	if len(proposal.Aspect) == 0 {
		return nil, fmt.Errorf("%w: %s proposal carries no payload", pkgerrors.ErrInvalidArgument, proposal.ChangeType)
	}
	value, err := registry.DecodeAspect(proposal.AspectName, proposal.Aspect)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err)
	}
	return value, nil
}
