package registry

import (
	"errors"
	"testing"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

func TestApplyPatch_DatasetPropertiesUnionsCustomProperties(t *testing.T) {
	old := &domain.DatasetProperties{
		Name:             "users",
		Description:      "user table",
		CustomProperties: map[string]string{"team": "core", "tier": "1"},
	}
	patch := []byte(`{"description":"the user table","customProperties":{"tier":"0","sla":"24h"}}`)

	merged, err := ApplyPatch(domain.DatasetPropertiesName, old, patch)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	got := merged.(*domain.DatasetProperties)
	if got.Name != "users" {
		t.Fatalf("unpatched field lost: %q", got.Name)
	}
	if got.Description != "the user table" {
		t.Fatalf("patched field: %q", got.Description)
	}
	if got.CustomProperties["team"] != "core" || got.CustomProperties["tier"] != "0" || got.CustomProperties["sla"] != "24h" {
		t.Fatalf("customProperties union: %v", got.CustomProperties)
	}
}

func TestApplyPatch_OwnershipReplacesByOwnerUrn(t *testing.T) {
	old := &domain.Ownership{Owners: []domain.Owner{
		{Owner: "urn:li:corpuser:alice", Type: "TECHNICAL_OWNER"},
		{Owner: "urn:li:corpuser:bob", Type: "BUSINESS_OWNER"},
	}}
	patch := []byte(`{"owners":[{"owner":"urn:li:corpuser:bob","type":"TECHNICAL_OWNER"},{"owner":"urn:li:corpuser:carol"}]}`)

	merged, err := ApplyPatch(domain.OwnershipAspect, old, patch)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	got := merged.(*domain.Ownership)
	if len(got.Owners) != 3 {
		t.Fatalf("expected 3 owners, got %+v", got.Owners)
	}
	if got.Owners[1].Owner != "urn:li:corpuser:bob" || got.Owners[1].Type != "TECHNICAL_OWNER" {
		t.Fatalf("bob not replaced in place: %+v", got.Owners[1])
	}
	if got.Owners[2].Owner != "urn:li:corpuser:carol" {
		t.Fatalf("carol not appended: %+v", got.Owners[2])
	}
}

func TestApplyPatch_NilOldStartsFromZeroValue(t *testing.T) {
	merged, err := ApplyPatch(domain.DatasetPropertiesName, nil, []byte(`{"name":"events"}`))
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if merged.(*domain.DatasetProperties).Name != "events" {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
}

func TestApplyPatch_UnregisteredAspect(t *testing.T) {
	if _, err := ApplyPatch(domain.StatusAspect, nil, []byte(`{}`)); !errors.Is(err, pkgerrors.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if SupportsPatch(domain.StatusAspect) {
		t.Fatalf("status should not support patch")
	}
	if !SupportsPatch(domain.OwnershipAspect) {
		t.Fatalf("ownership should support patch")
	}
}

func TestExtractRelationships_CoversDeclaredAspects(t *testing.T) {
	upstream := &domain.UpstreamLineage{Upstreams: []domain.Upstream{
		{Dataset: "urn:li:dataset:(urn:li:dataPlatform:hive,db.raw,PROD)", Via: "urn:li:dataJob:(urn:li:dataFlow:(airflow,etl,prod),load)"},
	}}
	rels, err := ExtractRelationships(upstream)
	if err != nil {
		t.Fatalf("extract upstreamLineage: %v", err)
	}
	if len(rels) != 1 || rels[0].Type != domain.DownstreamOfRelationship || rels[0].Via == nil {
		t.Fatalf("upstreamLineage extraction: %+v", rels)
	}

	io := &domain.DataJobInputOutput{
		InputDatasets:  []string{"urn:li:dataset:(urn:li:dataPlatform:hive,db.a,PROD)"},
		OutputDatasets: []string{"urn:li:dataset:(urn:li:dataPlatform:hive,db.b,PROD)"},
	}
	rels, err = ExtractRelationships(io)
	if err != nil {
		t.Fatalf("extract dataJobInputOutput: %v", err)
	}
	if len(rels) != 2 || rels[0].Type != domain.ConsumesRelationship || rels[1].Type != domain.ProducesRelationship {
		t.Fatalf("dataJobInputOutput extraction: %+v", rels)
	}

	rels, err = ExtractRelationships(&domain.Ownership{Owners: []domain.Owner{{Owner: "urn:li:corpuser:alice"}}})
	if err != nil || len(rels) != 1 || rels[0].Type != domain.OwnedByRelationship {
		t.Fatalf("ownership extraction: %+v err=%v", rels, err)
	}

	// Aspects with no relationship-bearing fields yield nothing.
	rels, err = ExtractRelationships(&domain.Status{Removed: true})
	if err != nil || rels != nil {
		t.Fatalf("status extraction should be empty: %+v err=%v", rels, err)
	}
}

func TestExtractRelationships_MalformedUrnFails(t *testing.T) {
	bad := &domain.UpstreamLineage{Upstreams: []domain.Upstream{{Dataset: "not-a-urn"}}}
	if _, err := ExtractRelationships(bad); err == nil {
		t.Fatalf("expected error for malformed urn")
	}
}
