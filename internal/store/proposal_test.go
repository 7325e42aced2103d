package store

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

func proposalFor(changeType domain.ChangeType, aspectName string, payload string) domain.ChangeProposal {
	return domain.ChangeProposal{
		EntityUrn:  datasetUrn,
		AspectName: aspectName,
		ChangeType: changeType,
		Aspect:     []byte(payload),
	}
}

func TestIngestProposal_Upsert(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	value, err := s.IngestProposal(ctx, proposalFor(domain.ChangeUpsert, domain.DatasetPropertiesName, `{"description":"via proposal"}`), testAudit())
	if err != nil {
		t.Fatalf("upsert proposal: %v", err)
	}
	if value.(*domain.DatasetProperties).Description != "via proposal" {
		t.Fatalf("returned value: %+v", value)
	}
	got, _ := s.Get(ctx, datasetUrn, domain.DatasetPropertiesName, 0)
	if got.(*domain.DatasetProperties).Description != "via proposal" {
		t.Fatalf("persisted value: %+v", got)
	}
}

func TestIngestProposal_CreateRejectsExisting(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IngestProposal(ctx, proposalFor(domain.ChangeCreate, domain.DatasetPropertiesName, `{"description":"a"}`), testAudit()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.IngestProposal(ctx, proposalFor(domain.ChangeCreate, domain.DatasetPropertiesName, `{"description":"b"}`), testAudit())
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("second create should be invalid, got %v", err)
	}
	if errors.Is(err, pkgerrors.ErrRetryLimitExceeded) {
		t.Fatalf("existing aspect must not burn retry attempts: %v", err)
	}
}

func TestIngestProposal_CreateEntityRejectsExistingEntity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IngestProposal(ctx, proposalFor(domain.ChangeCreateEntity, domain.DatasetPropertiesName, `{"description":"a"}`), testAudit()); err != nil {
		t.Fatalf("create entity: %v", err)
	}
	_, err := s.IngestProposal(ctx, proposalFor(domain.ChangeCreateEntity, domain.OwnershipAspect, `{"owners":[]}`), testAudit())
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("CREATE_ENTITY against an existing entity should fail, got %v", err)
	}
}

func TestIngestProposal_TimeseriesAcceptsOnlyUpsert(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, changeType := range []domain.ChangeType{domain.ChangeCreate, domain.ChangeCreateEntity, domain.ChangePatch} {
		_, err := s.IngestProposal(ctx, proposalFor(changeType, domain.DatasetProfileAspect, `{"rowCount":5}`), testAudit())
		if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("%s on timeseries aspect should be invalid, got %v", changeType, err)
		}
	}
	if _, err := s.IngestProposal(ctx, proposalFor(domain.ChangeUpsert, domain.DatasetProfileAspect, `{"rowCount":5}`), testAudit()); err != nil {
		t.Fatalf("upsert on timeseries aspect: %v", err)
	}
}

func TestIngestProposal_PatchNeedsMergeTemplate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.IngestProposal(ctx, proposalFor(domain.ChangePatch, domain.StatusAspect, `{"removed":true}`), testAudit())
	if !errors.Is(err, pkgerrors.ErrUnsupported) {
		t.Fatalf("patch without a merge template should be unsupported, got %v", err)
	}
}

func TestIngestProposal_PatchMergesOwnership(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IngestProposal(ctx, proposalFor(domain.ChangeUpsert, domain.OwnershipAspect, `{"owners":[{"owner":"urn:li:corpuser:alice","type":"TECHNICAL_OWNER"}]}`), testAudit()); err != nil {
		t.Fatalf("seed ownership: %v", err)
	}
	value, err := s.IngestProposal(ctx, proposalFor(domain.ChangePatch, domain.OwnershipAspect, `{"owners":[{"owner":"urn:li:corpuser:bob"}]}`), testAudit())
	if err != nil {
		t.Fatalf("patch ownership: %v", err)
	}
	owners := value.(*domain.Ownership).Owners
	if len(owners) != 2 || owners[0].Owner != "urn:li:corpuser:alice" || owners[1].Owner != "urn:li:corpuser:bob" {
		t.Fatalf("patch should append bob and keep alice: %+v", owners)
	}
}

func TestIngestProposal_DeleteAspect(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IngestProposal(ctx, proposalFor(domain.ChangeUpsert, domain.DatasetPropertiesName, `{"description":"a"}`), testAudit()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.IngestProposal(ctx, proposalFor(domain.ChangeDelete, domain.DatasetPropertiesName, ""), testAudit()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if v, _ := s.Get(ctx, datasetUrn, domain.DatasetPropertiesName, 0); v != nil {
		t.Fatalf("aspect should be gone: %+v", v)
	}
	// The rest of the entity is untouched.
	if v, _ := s.Get(ctx, datasetUrn, domain.DatasetKeyAspect, 0); v == nil {
		t.Fatalf("key aspect should survive a plain aspect delete")
	}

	_, err := s.IngestProposal(ctx, proposalFor(domain.ChangeDelete, domain.DatasetPropertiesName, ""), testAudit())
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("double delete should be not found, got %v", err)
	}
}

func TestIngestProposal_DeleteKeyAspectDeletesEntity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.IngestProposal(ctx, proposalFor(domain.ChangeUpsert, domain.DatasetPropertiesName, `{"description":"a"}`), testAudit()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.IngestProposal(ctx, proposalFor(domain.ChangeDelete, domain.DatasetKeyAspect, ""), testAudit()); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	out, err := s.BatchGet(ctx, []domain.Urn{datasetUrn}, nil)
	if err != nil {
		t.Fatalf("batchGet: %v", err)
	}
	if _, ok := out[datasetUrn.String()]; ok {
		t.Fatalf("entity should be fully deleted, got %+v", out)
	}
}

func TestIngestProposal_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		proposal domain.ChangeProposal
		want     error
	}{
		{"zero urn", domain.ChangeProposal{AspectName: domain.StatusAspect, ChangeType: domain.ChangeUpsert, Aspect: []byte(`{}`)}, pkgerrors.ErrInvalidArgument},
		{"entity type mismatch", domain.ChangeProposal{EntityUrn: datasetUrn, EntityType: "chart", AspectName: domain.StatusAspect, ChangeType: domain.ChangeUpsert, Aspect: []byte(`{}`)}, pkgerrors.ErrInvalidArgument},
		{"missing aspect name", domain.ChangeProposal{EntityUrn: datasetUrn, ChangeType: domain.ChangeUpsert, Aspect: []byte(`{}`)}, pkgerrors.ErrInvalidArgument},
		{"unregistered aspect", proposalFor(domain.ChangeUpsert, "nonsense", `{}`), pkgerrors.ErrInvalidArgument},
		{"empty payload", proposalFor(domain.ChangeUpsert, domain.StatusAspect, ""), pkgerrors.ErrInvalidArgument},
		{"garbled payload", proposalFor(domain.ChangeUpsert, domain.StatusAspect, `{"removed":`), pkgerrors.ErrInvalidArgument},
		{"unknown change type", proposalFor("MUTATE", domain.StatusAspect, `{}`), pkgerrors.ErrInvalidArgument},
	}
	for _, tc := range cases {
		if _, err := s.IngestProposal(ctx, tc.proposal, testAudit()); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}
