package store

import (
	"context"
	"testing"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

func ingestWithRun(t *testing.T, s *EntityAspectStore, urn domain.Urn, aspectName string, value domain.AspectValue, runID string) {
	t.Helper()
	if _, err := s.Ingest(context.Background(), urn, aspectName, setValue(value), testAudit(), &domain.SystemMetadata{RunID: runID}); err != nil {
		t.Fatalf("ingest (%s, %s): %v", urn, aspectName, err)
	}
}

func TestRollback_RestoresPreviousVersion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ingestWithRun(t, s, datasetUrn, domain.DatasetPropertiesName, &domain.DatasetProperties{Description: "v0"}, "run-a")
	ingestWithRun(t, s, datasetUrn, domain.DatasetPropertiesName, &domain.DatasetProperties{Description: "v1"}, "run-b")

	result, err := s.Rollback(ctx, datasetUrn, domain.DatasetPropertiesName, "run-b")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !result.RolledBack || result.EntityDeleted {
		t.Fatalf("rollback result: %+v", result)
	}

	got, err := s.Get(ctx, datasetUrn, domain.DatasetPropertiesName, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.(*domain.DatasetProperties).Description != "v0" {
		t.Fatalf("rollback should restore v0, got %+v", got)
	}
	if v, _ := s.Get(ctx, datasetUrn, domain.DatasetPropertiesName, 1); v != nil {
		t.Fatalf("promoted history row should be deleted, found %+v", v)
	}
}

func TestRollback_RunIDMismatchIsANoOp(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ingestWithRun(t, s, datasetUrn, domain.DatasetPropertiesName, &domain.DatasetProperties{Description: "v0"}, "run-a")
	ingestWithRun(t, s, datasetUrn, domain.DatasetPropertiesName, &domain.DatasetProperties{Description: "v1"}, "run-b")

	result, err := s.Rollback(ctx, datasetUrn, domain.DatasetPropertiesName, "some-other-run")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if result.RolledBack {
		t.Fatalf("mismatched run id must not roll back: %+v", result)
	}
	got, _ := s.Get(ctx, datasetUrn, domain.DatasetPropertiesName, 0)
	if got.(*domain.DatasetProperties).Description != "v1" {
		t.Fatalf("value should be untouched: %+v", got)
	}
}

func TestRollback_EarliestBoundaryDeletesAspect(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ingestWithRun(t, s, datasetUrn, domain.OwnershipAspect, &domain.Ownership{Owners: []domain.Owner{{Owner: "urn:li:corpuser:alice"}}}, "run-a")

	result, err := s.Rollback(ctx, datasetUrn, domain.OwnershipAspect, "run-a")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !result.RolledBack || result.EntityDeleted {
		t.Fatalf("rollback result: %+v", result)
	}
	if v, _ := s.Get(ctx, datasetUrn, domain.OwnershipAspect, 0); v != nil {
		t.Fatalf("sole-version aspect should be gone: %+v", v)
	}
	// Side aspects and the key survive.
	if v, _ := s.Get(ctx, datasetUrn, domain.DatasetKeyAspect, 0); v == nil {
		t.Fatalf("key aspect must survive a side-aspect rollback")
	}
}

func TestRollbackUrn_SoleKeyRollbackDeletesEntity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ingestWithRun(t, s, datasetUrn, domain.DatasetPropertiesName, &domain.DatasetProperties{Description: "x"}, "run-a")

	result, err := s.RollbackUrn(ctx, datasetUrn, "run-a")
	if err != nil {
		t.Fatalf("rollbackUrn: %v", err)
	}
	if result.EntitiesDeleted != 1 {
		t.Fatalf("expected 1 entity deletion, got %+v", result)
	}
	if len(result.RolledBack) == 0 {
		t.Fatalf("rolled-back set should not be empty")
	}

	out, err := s.BatchGet(ctx, []domain.Urn{datasetUrn}, nil)
	if err != nil {
		t.Fatalf("batchGet: %v", err)
	}
	if _, ok := out[datasetUrn.String()]; ok {
		t.Fatalf("urn should be fully purged, got %+v", out)
	}
}

func TestRollbackRun_SpansUrnsAndSkipsForeignRuns(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	other := domain.MustParseUrn("urn:li:dataset:(urn:li:dataPlatform:hive,db.other,PROD)")
	ingestWithRun(t, s, datasetUrn, domain.DatasetPropertiesName, &domain.DatasetProperties{Description: "mine"}, "run-a")
	ingestWithRun(t, s, other, domain.DatasetPropertiesName, &domain.DatasetProperties{Description: "theirs"}, "run-z")

	result, err := s.RollbackRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("rollbackRun: %v", err)
	}
	if result.EntitiesDeleted != 1 {
		t.Fatalf("expected the run-a entity to be deleted: %+v", result)
	}
	if got, _ := s.Get(ctx, other, domain.DatasetPropertiesName, 0); got == nil {
		t.Fatalf("run-z data must be untouched")
	}
}
