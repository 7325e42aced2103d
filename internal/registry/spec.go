package registry

import (
	"fmt"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

// LineageTag declares which side of a lineage edge the declaring entity
// sits on, traversed outward from it.
type LineageTag string

const (
	// LineageNone marks a plain relationship that never participates in
	// lineage traversal.
	LineageNone LineageTag = ""
	// LineageUpstreamOfTarget: the declaring entity is upstream of the
	// referenced target.
	LineageUpstreamOfTarget LineageTag = "upstreamOfTarget"
	// LineageDownstreamOfTarget: the declaring entity is downstream of /
	// produced by the referenced target.
	LineageDownstreamOfTarget LineageTag = "downstreamOfTarget"
)

// RelationshipFieldSpec is a static declaration on an aspect's schema: a
// field holding a foreign urn, the relationship type it contributes, and an
// optional lineage tag.
type RelationshipFieldSpec struct {
	Name             string     // relationship type name
	Field            string     // field path within the aspect record
	DestinationTypes []string   // valid destination entity types
	Lineage          LineageTag // lineage participation and semantic side
}

// KeyFieldSpec is one field of a key aspect. Types are restricted to
// string and enum so the key tuple round-trips losslessly.
type KeyFieldSpec struct {
	Name string
	Type string
}

// KeyAspectSpec names the key aspect and fixes the ordered key-part tuple.
type KeyAspectSpec struct {
	Name   string
	Fields []KeyFieldSpec
}

// AspectSpec describes one registered aspect of an entity type.
type AspectSpec struct {
	Name          string
	Timeseries    bool
	Relationships []RelationshipFieldSpec
}

// EntitySpec is the parsed declaration of one entity type.
type EntitySpec struct {
	Name      string
	KeyAspect KeyAspectSpec
	Aspects   []AspectSpec

	aspectIndex map[string]*AspectSpec
}

func (e *EntitySpec) Aspect(name string) (*AspectSpec, bool) {
	a, ok := e.aspectIndex[name]
	return a, ok
}

func (e *EntitySpec) HasAspect(name string) bool {
	_, ok := e.aspectIndex[name]
	return ok
}

// Registry is the in-memory entity model, built once at startup and
// consumed read-only. No ambient global instance exists: it is constructed
// explicitly and injected into the store and the graph engine.
type Registry struct {
	Name    string
	Version string

	entities map[string]*EntitySpec
	order    []string
}

func (r *Registry) Entity(entityType string) (*EntitySpec, bool) {
	e, ok := r.entities[entityType]
	return e, ok
}

// Entities returns specs in declaration order.
func (r *Registry) Entities() []*EntitySpec {
	out := make([]*EntitySpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

func (r *Registry) HasAspect(entityType, aspectName string) bool {
	e, ok := r.entities[entityType]
	if !ok {
		return false
	}
	return e.HasAspect(aspectName) || e.KeyAspect.Name == aspectName
}

func (r *Registry) KeyAspectName(entityType string) (string, error) {
	e, ok := r.entities[entityType]
	if !ok {
		return "", fmt.Errorf("%w: unknown entity type %q", pkgerrors.ErrInvalidArgument, entityType)
	}
	return e.KeyAspect.Name, nil
}

// AspectSpecFor resolves an aspect spec, treating the key aspect as an
// implicit member of the entity's aspect set.
func (r *Registry) AspectSpecFor(entityType, aspectName string) (*AspectSpec, error) {
	e, ok := r.entities[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity type %q", pkgerrors.ErrInvalidArgument, entityType)
	}
	if a, ok := e.Aspect(aspectName); ok {
		return a, nil
	}
	if e.KeyAspect.Name == aspectName {
		return &AspectSpec{Name: aspectName}, nil
	}
	return nil, fmt.Errorf("%w: aspect %q not declared for entity type %q", pkgerrors.ErrInvalidArgument, aspectName, entityType)
}

// KeyAspectForUrn synthesizes the key aspect value from the urn's key-part
// tuple. The field order of the key aspect spec fixes the tuple order.
func (r *Registry) KeyAspectForUrn(urn domain.Urn) (domain.AspectValue, error) {
	e, ok := r.entities[urn.EntityType()]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity type %q", pkgerrors.ErrInvalidArgument, urn.EntityType())
	}
	parts := urn.Parts()
	if len(parts) != len(e.KeyAspect.Fields) {
		return nil, fmt.Errorf("%w: urn %s has %d key parts, key aspect %q declares %d fields",
			pkgerrors.ErrInvalidArgument, urn, len(parts), e.KeyAspect.Name, len(e.KeyAspect.Fields))
	}
	fields := make(map[string]string, len(parts))
	for i, f := range e.KeyAspect.Fields {
		fields[f.Name] = parts[i]
	}
	return decodeKeyFields(e.KeyAspect.Name, fields)
}
