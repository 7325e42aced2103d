package registry

import (
	"errors"
	"testing"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

const testRegistryYAML = `
name: metagraph
version: "1.0.0"
entities:
  - name: dataset
    keyAspect:
      name: datasetKey
      fields:
        - {name: platform, type: string}
        - {name: name, type: string}
        - {name: origin, type: enum}
    aspects:
      - name: datasetProperties
      - name: upstreamLineage
        relationships:
          - name: DownstreamOf
            field: upstreams.dataset
            destinationTypes: [dataset]
            lineage: downstreamOfTarget
      - name: ownership
        relationships:
          - name: OwnedBy
            field: owners.owner
            destinationTypes: [corpuser]
      - name: datasetProfile
        timeseries: true
  - name: dataJob
    keyAspect:
      name: dataJobKey
      fields:
        - {name: flow, type: string}
        - {name: jobId, type: string}
    aspects:
      - name: dataJobInputOutput
        relationships:
          - name: Consumes
            field: inputDatasets
            destinationTypes: [dataset]
            lineage: downstreamOfTarget
          - name: Produces
            field: outputDatasets
            destinationTypes: [dataset]
            lineage: upstreamOfTarget
  - name: corpuser
    keyAspect:
      name: corpUserKey
      fields:
        - {name: username, type: string}
    aspects:
      - name: corpUserInfo
`

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Load([]byte(testRegistryYAML), nil)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}

func TestLoad_ParsesEntitiesAndAspects(t *testing.T) {
	reg := loadTestRegistry(t)

	if reg.Name != "metagraph" || reg.Version != "1.0.0" {
		t.Fatalf("registry identity: %q %q", reg.Name, reg.Version)
	}
	dataset, ok := reg.Entity("dataset")
	if !ok {
		t.Fatalf("dataset entity missing")
	}
	if dataset.KeyAspect.Name != "datasetKey" || len(dataset.KeyAspect.Fields) != 3 {
		t.Fatalf("dataset key aspect: %+v", dataset.KeyAspect)
	}
	if !reg.HasAspect("dataset", "datasetProperties") {
		t.Fatalf("datasetProperties should be registered")
	}
	if !reg.HasAspect("dataset", "datasetKey") {
		t.Fatalf("key aspect should count as a dataset aspect")
	}
	if reg.HasAspect("dataset", "dashboardInfo") {
		t.Fatalf("dashboardInfo should not be registered for dataset")
	}

	profile, err := reg.AspectSpecFor("dataset", "datasetProfile")
	if err != nil {
		t.Fatalf("datasetProfile spec: %v", err)
	}
	if !profile.Timeseries {
		t.Fatalf("datasetProfile should be timeseries")
	}

	io, err := reg.AspectSpecFor("dataJob", "dataJobInputOutput")
	if err != nil {
		t.Fatalf("dataJobInputOutput spec: %v", err)
	}
	if len(io.Relationships) != 2 {
		t.Fatalf("expected 2 relationship declarations, got %d", len(io.Relationships))
	}
}

func TestLoad_RejectsInvalidModels(t *testing.T) {
	cases := map[string]string{
		"no entities": `name: x`,
		"bad key field type": `
entities:
  - name: dataset
    keyAspect:
      name: datasetKey
      fields:
        - {name: count, type: int}
    aspects: [{name: a}]
`,
		"duplicate aspect": `
entities:
  - name: dataset
    keyAspect:
      name: datasetKey
      fields: [{name: platform, type: string}]
    aspects:
      - name: ownership
      - name: ownership
`,
		"unknown destination type": `
entities:
  - name: dataset
    keyAspect:
      name: datasetKey
      fields: [{name: platform, type: string}]
    aspects:
      - name: ownership
        relationships:
          - name: OwnedBy
            field: owners.owner
            destinationTypes: [ghost]
`,
		"invalid lineage tag": `
entities:
  - name: dataset
    keyAspect:
      name: datasetKey
      fields: [{name: platform, type: string}]
    aspects:
      - name: upstreamLineage
        relationships:
          - name: DownstreamOf
            field: upstreams.dataset
            destinationTypes: [dataset]
            lineage: sideways
`,
	}
	for label, yaml := range cases {
		if _, err := Load([]byte(yaml), nil); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", label, err)
		}
	}
}

func TestKeyAspectForUrn_SynthesizesKeyTuple(t *testing.T) {
	reg := loadTestRegistry(t)

	urn := domain.MustParseUrn("urn:li:dataset:(urn:li:dataPlatform:hive,db.users,PROD)")
	value, err := reg.KeyAspectForUrn(urn)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	key, ok := value.(*domain.DatasetKey)
	if !ok {
		t.Fatalf("expected *DatasetKey, got %T", value)
	}
	if key.Platform != "urn:li:dataPlatform:hive" || key.Name != "db.users" || key.Origin != "PROD" {
		t.Fatalf("key fields: %+v", key)
	}
}

func TestKeyAspectForUrn_PartCountMismatch(t *testing.T) {
	reg := loadTestRegistry(t)
	urn := domain.MustParseUrn("urn:li:dataset:justone")
	if _, err := reg.KeyAspectForUrn(urn); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
