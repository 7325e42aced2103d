package store

import (
	"context"
	"fmt"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
	"github.com/yungbote/metagraph-backend/internal/registry"
)

// UpdateFn computes the new value of an aspect from its current value (nil
// when absent). It runs inside the ingest transaction and may run more than
// once on retry; it must be side-effect free.
type UpdateFn func(old domain.AspectValue) (domain.AspectValue, error)

// Options tunes an EntityAspectStore.
type Options struct {
	// MaxTransactionRetries bounds the optimistic write loop. Zero means
	// DefaultMaxTransactionRetries.
	MaxTransactionRetries int
	// AlwaysEmitChangeLog emits a change event even for no-op writes.
	AlwaysEmitChangeLog bool
}

// EntityAspectStore is the versioned aspect store: optimistic transactional
// ingest, version-0-is-latest history, default-aspect generation, retention
// of per-version audit and system metadata, and run-scoped rollback.
type EntityAspectStore struct {
	dao        AspectDao
	registry   *registry.Registry
	emitter    Emitter
	log        *logger.Logger
	maxRetries int
	alwaysEmit bool

	equality  map[string]EqualityTester
	preHooks  []PreCommitHook
	postHooks []PostCommitHook
}

func NewEntityAspectStore(dao AspectDao, reg *registry.Registry, emitter Emitter, baseLog *logger.Logger, opts Options) *EntityAspectStore {
	maxRetries := opts.MaxTransactionRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxTransactionRetries
	}
	if emitter == nil {
		emitter = NewLogEmitter(baseLog)
	}
	return &EntityAspectStore{
		dao:        dao,
		registry:   reg,
		emitter:    emitter,
		log:        baseLog.With("service", "EntityAspectStore"),
		maxRetries: maxRetries,
		alwaysEmit: opts.AlwaysEmitChangeLog,
		equality:   make(map[string]EqualityTester),
	}
}

// RegisterEqualityTester overrides the no-op detector for one aspect name.
func (s *EntityAspectStore) RegisterEqualityTester(aspectName string, tester EqualityTester) {
	s.equality[aspectName] = tester
}

func (s *EntityAspectStore) RegisterPreCommitHook(hook PreCommitHook) {
	s.preHooks = append(s.preHooks, hook)
}

func (s *EntityAspectStore) RegisterPostCommitHook(hook PostCommitHook) {
	s.postHooks = append(s.postHooks, hook)
}

func (s *EntityAspectStore) equalityFor(aspectName string) EqualityTester {
	if t, ok := s.equality[aspectName]; ok {
		return t
	}
	return JSONEquality
}

// Ingest runs one read-compute-write cycle for (urn, aspectName) inside a
// bounded-retry optimistic transaction. A value the equality tester deems
// unchanged refreshes lastObserved without bumping history. The first write
// to a brand-new urn also persists the synthesized key aspect and the
// entity's default aspects in the same transaction. Change events are
// emitted after the commit.
func (s *EntityAspectStore) Ingest(ctx context.Context, urn domain.Urn, aspectName string, fn UpdateFn, audit domain.AuditStamp, meta *domain.SystemMetadata) (domain.AspectValue, error) {
	if urn.IsZero() {
		return nil, fmt.Errorf("%w: zero urn", pkgerrors.ErrInvalidArgument)
	}
	if _, err := s.registry.AspectSpecFor(urn.EntityType(), aspectName); err != nil {
		return nil, err
	}
	meta = s.normalizeMetadata(meta)

	var result domain.AspectValue
	var events []domain.ChangeEvent

	err := runInTransactionWithRetry(ctx, s.dao, s.maxRetries, s.log, func(tx AspectTx) error {
		events = events[:0]

		oldRow, err := tx.GetLatest(urn.String(), aspectName)
		if err != nil {
			return err
		}
		oldValue, err := decodeRow(oldRow)
		if err != nil {
			return err
		}
		newValue, err := fn(oldValue)
		if err != nil {
			return err
		}
		if newValue == nil {
			return fmt.Errorf("%w: update for (%s, %s) produced no value", pkgerrors.ErrInvalidArgument, urn, aspectName)
		}

		event, noop, err := s.writeAspect(tx, urn, aspectName, oldRow, oldValue, newValue, audit, meta)
		if err != nil {
			return err
		}
		if noop {
			result = oldValue
		} else {
			result = newValue
		}
		if event != nil {
			events = append(events, *event)
		}

		if !noop {
			defaultEvents, err := s.writeDefaults(tx, urn, aspectName, audit, meta)
			if err != nil {
				return err
			}
			events = append(events, defaultEvents...)
		}

		return s.runPreCommitHooks(ctx, tx, audit, &events)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	return result, nil
}

// writeAspect applies one aspect write inside a transaction: either a
// lastObserved refresh (no-op) or a version bump.
func (s *EntityAspectStore) writeAspect(tx AspectTx, urn domain.Urn, aspectName string, oldRow *Row, oldValue, newValue domain.AspectValue, audit domain.AuditStamp, meta *domain.SystemMetadata) (*domain.ChangeEvent, bool, error) {
	if oldRow != nil && s.equalityFor(aspectName)(oldValue, newValue) {
		refreshed := oldRow.Metadata.Clone()
		if refreshed == nil {
			refreshed = &domain.SystemMetadata{}
		}
		refreshed.LastObserved = meta.LastObserved
		updated := *oldRow
		updated.Metadata = refreshed
		if err := tx.UpdateLatest(updated); err != nil {
			return nil, false, err
		}
		if !s.alwaysEmit {
			return nil, true, nil
		}
		return &domain.ChangeEvent{
			Urn:               urn,
			AspectName:        aspectName,
			Operation:         domain.ChangeUpsert,
			OldValue:          oldValue,
			NewValue:          oldValue,
			OldSystemMetadata: oldRow.Metadata,
			NewSystemMetadata: refreshed,
			Audit:             audit,
		}, true, nil
	}

	payload, err := registry.EncodeAspect(newValue)
	if err != nil {
		return nil, false, err
	}
	newRow := Row{
		Urn:        urn.String(),
		Aspect:     aspectName,
		Version:    0,
		Payload:    payload,
		Metadata:   meta.Clone(),
		CreatedOn:  now(),
		CreatedBy:  audit.Actor,
		CreatedFor: audit.Impersonator,
	}

	operation := domain.ChangeCreate
	var oldMeta *domain.SystemMetadata
	if oldRow != nil {
		operation = domain.ChangeUpsert
		oldMeta = oldRow.Metadata
		maxV, _, err := tx.MaxVersion(urn.String(), aspectName)
		if err != nil {
			return nil, false, err
		}
		// Retire the current value under the next unused version; a
		// concurrent writer racing for the same slot loses on the
		// primary key and triggers a retry.
		retired := *oldRow
		retired.Version = maxV + 1
		if err := tx.Insert(retired); err != nil {
			return nil, false, err
		}
		if err := tx.UpdateLatest(newRow); err != nil {
			return nil, false, err
		}
	} else {
		if err := tx.Insert(newRow); err != nil {
			return nil, false, err
		}
	}

	return &domain.ChangeEvent{
		Urn:               urn,
		AspectName:        aspectName,
		Operation:         operation,
		OldValue:          oldValue,
		NewValue:          newValue,
		OldSystemMetadata: oldMeta,
		NewSystemMetadata: newRow.Metadata,
		Audit:             audit,
	}, false, nil
}

// writeDefaults persists the synthesized key aspect and the entity's
// default aspects when the urn is brand new.
func (s *EntityAspectStore) writeDefaults(tx AspectTx, urn domain.Urn, ingestingAspect string, audit domain.AuditStamp, meta *domain.SystemMetadata) ([]domain.ChangeEvent, error) {
	defaults, err := s.generateDefaults(txGetter{tx}, urn, map[string]struct{}{ingestingAspect: {}})
	if err != nil {
		return nil, err
	}
	var events []domain.ChangeEvent
	for _, env := range defaults {
		event, _, err := s.writeAspect(tx, env.Urn, env.AspectName, nil, nil, env.Value, audit, meta)
		if err != nil {
			return nil, err
		}
		if event != nil {
			events = append(events, *event)
		}
	}
	return events, nil
}

func (s *EntityAspectStore) runPreCommitHooks(ctx context.Context, tx AspectTx, audit domain.AuditStamp, events *[]domain.ChangeEvent) error {
	if len(s.preHooks) == 0 || len(*events) == 0 {
		return nil
	}
	batch := make([]domain.ChangeEvent, len(*events))
	copy(batch, *events)
	for _, hook := range s.preHooks {
		extras, err := hook(ctx, batch)
		if err != nil {
			return fmt.Errorf("pre-commit hook: %w", err)
		}
		for _, env := range extras {
			oldRow, err := tx.GetLatest(env.Urn.String(), env.AspectName)
			if err != nil {
				return err
			}
			oldValue, err := decodeRow(oldRow)
			if err != nil {
				return err
			}
			meta := s.normalizeMetadata(env.Metadata)
			event, _, err := s.writeAspect(tx, env.Urn, env.AspectName, oldRow, oldValue, env.Value, audit, meta)
			if err != nil {
				return err
			}
			if event != nil {
				*events = append(*events, *event)
			}
		}
	}
	return nil
}

// publish delivers change events after commit and feeds post-commit hook
// output back through Ingest. Hook and emitter failures are logged; the
// committed write already happened.
func (s *EntityAspectStore) publish(ctx context.Context, events []domain.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	for _, event := range events {
		if err := s.emitter.Emit(ctx, event); err != nil {
			s.log.Error("Change event emit failed", "urn", event.Urn.String(), "aspect", event.AspectName, "error", err)
		}
	}
	for _, hook := range s.postHooks {
		extras := hook(ctx, events)
		for _, env := range extras {
			value := env.Value
			if _, err := s.Ingest(ctx, env.Urn, env.AspectName, func(domain.AspectValue) (domain.AspectValue, error) {
				return value, nil
			}, domain.AuditStamp{Time: now().UnixMilli(), Actor: "urn:li:corpuser:__system"}, env.Metadata); err != nil {
				s.log.Error("Post-commit hook follow-up ingest failed", "urn", env.Urn.String(), "aspect", env.AspectName, "error", err)
			}
		}
	}
}

func (s *EntityAspectStore) normalizeMetadata(meta *domain.SystemMetadata) *domain.SystemMetadata {
	if meta == nil {
		meta = &domain.SystemMetadata{}
	} else {
		meta = meta.Clone()
	}
	if meta.LastObserved == 0 {
		meta.LastObserved = now().UnixMilli()
	}
	if meta.RegistryName == "" {
		meta.RegistryName = s.registry.Name
	}
	if meta.RegistryVersion == "" {
		meta.RegistryVersion = s.registry.Version
	}
	return meta
}

func decodeRow(row *Row) (domain.AspectValue, error) {
	if row == nil {
		return nil, nil
	}
	return registry.DecodeAspect(row.Aspect, row.Payload)
}

// Get returns one version of an aspect, nil when absent. Negative versions
// count back from the newest history entry: the requested version resolves
// to maxVersion + version + 1 before lookup.
func (s *EntityAspectStore) Get(ctx context.Context, urn domain.Urn, aspectName string, version int64) (domain.AspectValue, error) {
	if version < 0 {
		maxV, ok, err := s.dao.MaxVersion(ctx, urn.String(), aspectName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		version = maxV + version + 1
		if version < 0 {
			return nil, nil
		}
	}
	var row *Row
	var err error
	if version == 0 {
		row, err = s.dao.GetLatest(ctx, urn.String(), aspectName)
	} else {
		row, err = s.dao.GetVersion(ctx, urn.String(), aspectName, version)
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(row)
}

// GetWithMetadata is Get plus the stored system metadata of the row.
func (s *EntityAspectStore) GetWithMetadata(ctx context.Context, urn domain.Urn, aspectName string, version int64) (domain.AspectValue, *domain.SystemMetadata, error) {
	var row *Row
	var err error
	if version == 0 {
		row, err = s.dao.GetLatest(ctx, urn.String(), aspectName)
	} else {
		row, err = s.dao.GetVersion(ctx, urn.String(), aspectName, version)
	}
	if err != nil || row == nil {
		return nil, nil, err
	}
	value, err := decodeRow(row)
	if err != nil {
		return nil, nil, err
	}
	return value, row.Metadata, nil
}

// BatchGet returns the latest value of the requested aspects for each urn
// that exists. Every existing urn's result includes its key aspect,
// synthesized from the urn when it was never persisted. Urns with no
// persisted aspects are omitted entirely. An empty aspectNames slice means
// "all latest aspects".
func (s *EntityAspectStore) BatchGet(ctx context.Context, urns []domain.Urn, aspectNames []string) (map[string]map[string]domain.AspectValue, error) {
	out := make(map[string]map[string]domain.AspectValue, len(urns))
	for _, urn := range urns {
		rows, err := s.dao.LatestForUrn(ctx, urn.String())
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		keyName, err := s.registry.KeyAspectName(urn.EntityType())
		if err != nil {
			return nil, err
		}

		byName := make(map[string]domain.AspectValue)
		wanted := make(map[string]struct{}, len(aspectNames))
		for _, n := range aspectNames {
			wanted[n] = struct{}{}
		}
		for _, row := range rows {
			if len(wanted) > 0 {
				if _, ok := wanted[row.Aspect]; !ok && row.Aspect != keyName {
					continue
				}
			}
			value, err := decodeRow(&row)
			if err != nil {
				return nil, err
			}
			byName[row.Aspect] = value
		}
		if _, ok := byName[keyName]; !ok {
			key, err := s.registry.KeyAspectForUrn(urn)
			if err != nil {
				return nil, err
			}
			byName[keyName] = key
		}
		out[urn.String()] = byName
	}
	return out, nil
}

// ListAspectsResult pages version-0 aspect values ordered by urn.
type ListAspectsResult struct {
	Start      int
	Count      int
	Total      int
	TotalPages int
	Aspects    []AspectEnvelope
}

// ListUrnsResult pages entity urns lexicographically.
type ListUrnsResult struct {
	Start      int
	Count      int
	Total      int
	TotalPages int
	Urns       []domain.Urn
}

func (s *EntityAspectStore) ListLatestAspects(ctx context.Context, entityType, aspectName string, start, count int) (*ListAspectsResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", pkgerrors.ErrInvalidArgument)
	}
	rows, total, err := s.dao.ListLatest(ctx, entityType, aspectName, start, count)
	if err != nil {
		return nil, err
	}
	res := &ListAspectsResult{
		Start:      start,
		Count:      count,
		Total:      total,
		TotalPages: totalPages(total, count),
		Aspects:    make([]AspectEnvelope, 0, len(rows)),
	}
	for _, row := range rows {
		urn, err := domain.ParseUrn(row.Urn)
		if err != nil {
			return nil, err
		}
		value, err := decodeRow(&row)
		if err != nil {
			return nil, err
		}
		res.Aspects = append(res.Aspects, AspectEnvelope{Urn: urn, AspectName: row.Aspect, Value: value, Metadata: row.Metadata})
	}
	return res, nil
}

func (s *EntityAspectStore) ListUrns(ctx context.Context, entityType string, start, count int) (*ListUrnsResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", pkgerrors.ErrInvalidArgument)
	}
	raw, total, err := s.dao.ListUrns(ctx, entityType, start, count)
	if err != nil {
		return nil, err
	}
	res := &ListUrnsResult{
		Start:      start,
		Count:      count,
		Total:      total,
		TotalPages: totalPages(total, count),
		Urns:       make([]domain.Urn, 0, len(raw)),
	}
	for _, r := range raw {
		urn, err := domain.ParseUrn(r)
		if err != nil {
			return nil, err
		}
		res.Urns = append(res.Urns, urn)
	}
	return res, nil
}

func totalPages(total, count int) int {
	if count <= 0 {
		return 0
	}
	return (total + count - 1) / count
}
