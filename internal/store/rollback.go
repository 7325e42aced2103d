package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

// RollbackResult reports the outcome of one aspect rollback.
type RollbackResult struct {
	Urn        domain.Urn
	AspectName string
	// RolledBack is false when the current row was not stamped with the
	// requested run id and nothing changed.
	RolledBack bool
	// EntityDeleted is true when the rollback purged the whole urn.
	EntityDeleted bool
	// RestoredVersion is the historical version promoted back to 0, or -1
	// when the rollback ended in a delete.
	RestoredVersion int64
}

// RollbackRunResult accumulates a batch rollback for audit and replay.
type RollbackRunResult struct {
	EntitiesDeleted int
	RolledBack      []AspectIdentifier
}

// Rollback undoes the newest write to (urn, aspectName) when it was stamped
// with runID: the newest historical version is promoted back to version 0
// and removed from history, stepping the aspect back exactly one transition.
// At the earliest boundary the aspect is deleted instead; deleting a key
// aspect that was also the urn's first ever aspect purges the whole urn.
func (s *EntityAspectStore) Rollback(ctx context.Context, urn domain.Urn, aspectName, runID string) (*RollbackResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: empty run id", pkgerrors.ErrInvalidArgument)
	}
	result := &RollbackResult{Urn: urn, AspectName: aspectName, RestoredVersion: -1}
	var events []domain.ChangeEvent

	err := runInTransactionWithRetry(ctx, s.dao, s.maxRetries, s.log, func(tx AspectTx) error {
		events = events[:0]
		res, evs, err := s.rollbackAspect(tx, urn, aspectName, runID)
		if err != nil {
			return err
		}
		*result = *res
		events = evs
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	return result, nil
}

// RollbackUrn rolls back every latest aspect of urn stamped with runID,
// key aspect last so side aspects unwind before the entity can disappear.
func (s *EntityAspectStore) RollbackUrn(ctx context.Context, urn domain.Urn, runID string) (*RollbackRunResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: empty run id", pkgerrors.ErrInvalidArgument)
	}
	result := &RollbackRunResult{}
	var events []domain.ChangeEvent

	err := runInTransactionWithRetry(ctx, s.dao, s.maxRetries, s.log, func(tx AspectTx) error {
		*result = RollbackRunResult{}
		events = events[:0]

		rows, err := tx.LatestForUrn(urn.String())
		if err != nil {
			return err
		}
		targets := make([]AspectIdentifier, 0, len(rows))
		for _, row := range rows {
			targets = append(targets, AspectIdentifier{Urn: urn, AspectName: row.Aspect})
		}
		s.orderKeyAspectsLast(targets)
		return s.rollbackBatch(tx, targets, runID, result, &events)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	return result, nil
}

// RollbackRun undoes every latest aspect across the store stamped with
// runID.
func (s *EntityAspectStore) RollbackRun(ctx context.Context, runID string) (*RollbackRunResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: empty run id", pkgerrors.ErrInvalidArgument)
	}
	rows, err := s.dao.LatestByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	targets := make([]AspectIdentifier, 0, len(rows))
	for _, row := range rows {
		urn, err := domain.ParseUrn(row.Urn)
		if err != nil {
			return nil, err
		}
		targets = append(targets, AspectIdentifier{Urn: urn, AspectName: row.Aspect})
	}
	s.orderKeyAspectsLast(targets)

	result := &RollbackRunResult{}
	var events []domain.ChangeEvent
	err = runInTransactionWithRetry(ctx, s.dao, s.maxRetries, s.log, func(tx AspectTx) error {
		*result = RollbackRunResult{}
		events = events[:0]
		return s.rollbackBatch(tx, targets, runID, result, &events)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	return result, nil
}

func (s *EntityAspectStore) rollbackBatch(tx AspectTx, targets []AspectIdentifier, runID string, result *RollbackRunResult, events *[]domain.ChangeEvent) error {
	deleted := make(map[string]struct{})
	for _, target := range targets {
		if _, gone := deleted[target.Urn.String()]; gone {
			continue
		}
		res, evs, err := s.rollbackAspect(tx, target.Urn, target.AspectName, runID)
		if err != nil {
			return err
		}
		if !res.RolledBack {
			continue
		}
		result.RolledBack = append(result.RolledBack, target)
		*events = append(*events, evs...)
		if res.EntityDeleted {
			result.EntitiesDeleted++
			deleted[target.Urn.String()] = struct{}{}
		}
	}
	return nil
}

// rollbackAspect steps one aspect back one transition inside tx.
func (s *EntityAspectStore) rollbackAspect(tx AspectTx, urn domain.Urn, aspectName, runID string) (*RollbackResult, []domain.ChangeEvent, error) {
	result := &RollbackResult{Urn: urn, AspectName: aspectName, RestoredVersion: -1}

	current, err := tx.GetLatest(urn.String(), aspectName)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return result, nil, nil
	}
	if current.Metadata == nil || current.Metadata.RunID != runID {
		return result, nil, nil
	}
	currentValue, err := decodeRow(current)
	if err != nil {
		return nil, nil, err
	}

	maxV, hasHistory, err := tx.MaxVersion(urn.String(), aspectName)
	if err != nil {
		return nil, nil, err
	}
	if hasHistory && maxV > 0 {
		previous, err := tx.GetVersion(urn.String(), aspectName, maxV)
		if err != nil {
			return nil, nil, err
		}
		if previous == nil {
			return nil, nil, fmt.Errorf("%w: version %d of (%s, %s) vanished mid-rollback", pkgerrors.ErrBackend, maxV, urn, aspectName)
		}
		restored := *previous
		restored.Version = 0
		if err := tx.UpdateLatest(restored); err != nil {
			return nil, nil, err
		}
		if err := tx.Delete(urn.String(), aspectName, maxV); err != nil {
			return nil, nil, err
		}
		restoredValue, err := decodeRow(&restored)
		if err != nil {
			return nil, nil, err
		}
		result.RolledBack = true
		result.RestoredVersion = maxV
		event := s.rollbackEvent(urn, aspectName, currentValue, restoredValue, current.Metadata, restored.Metadata)
		return result, []domain.ChangeEvent{event}, nil
	}

	// Earliest boundary: no history behind version 0, the aspect goes away.
	keyName, err := s.registry.KeyAspectName(urn.EntityType())
	if err != nil {
		return nil, nil, err
	}
	if aspectName == keyName {
		earliest, ok, err := tx.EarliestAspect(urn.String())
		if err != nil {
			return nil, nil, err
		}
		remaining, err := tx.LatestForUrn(urn.String())
		if err != nil {
			return nil, nil, err
		}
		// The key going away takes the entity with it when it was the
		// urn's first aspect or nothing else is left standing.
		if (ok && earliest == keyName) || len(remaining) == 1 {
			if err := tx.DeleteUrn(urn.String()); err != nil {
				return nil, nil, err
			}
			result.RolledBack = true
			result.EntityDeleted = true
			event := s.rollbackEvent(urn, aspectName, currentValue, nil, current.Metadata, nil)
			return result, []domain.ChangeEvent{event}, nil
		}
		// The key aspect postdates some side aspect; deleting just the key
		// leaves a keyless entity behind, which callers can repair by
		// re-ingesting any aspect.
		s.log.Warn("Rollback removed a key aspect without deleting the entity",
			"urn", urn.String(), "runId", runID)
	}
	if err := tx.DeleteAspect(urn.String(), aspectName); err != nil {
		return nil, nil, err
	}
	result.RolledBack = true
	event := s.rollbackEvent(urn, aspectName, currentValue, nil, current.Metadata, nil)
	return result, []domain.ChangeEvent{event}, nil
}

func (s *EntityAspectStore) rollbackEvent(urn domain.Urn, aspectName string, oldValue, newValue domain.AspectValue, oldMeta, newMeta *domain.SystemMetadata) domain.ChangeEvent {
	operation := domain.ChangeUpsert
	if newValue == nil {
		operation = domain.ChangeDelete
	}
	return domain.ChangeEvent{
		Urn:               urn,
		AspectName:        aspectName,
		Operation:         operation,
		OldValue:          oldValue,
		NewValue:          newValue,
		OldSystemMetadata: oldMeta,
		NewSystemMetadata: newMeta,
		Audit:             domain.AuditStamp{Time: now().UnixMilli(), Actor: "urn:li:corpuser:__system"},
	}
}

// orderKeyAspectsLast keeps batch rollbacks deterministic: urn order first,
// side aspects before the key aspect within a urn.
func (s *EntityAspectStore) orderKeyAspectsLast(targets []AspectIdentifier) {
	isKey := func(t AspectIdentifier) bool {
		keyName, err := s.registry.KeyAspectName(t.Urn.EntityType())
		return err == nil && t.AspectName == keyName
	}
	sort.SliceStable(targets, func(i, j int) bool {
		ui, uj := targets[i].Urn.String(), targets[j].Urn.String()
		if ui != uj {
			return ui < uj
		}
		ki, kj := isKey(targets[i]), isKey(targets[j])
		if ki != kj {
			return !ki
		}
		return targets[i].AspectName < targets[j].AspectName
	})
}
