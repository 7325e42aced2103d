package graph

import (
	"context"

	"github.com/yungbote/metagraph-backend/internal/domain"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
	"github.com/yungbote/metagraph-backend/internal/registry"
	"github.com/yungbote/metagraph-backend/internal/store"
)

// IndexHook mirrors relationship-bearing aspect changes into the edge
// index. It owns the derived edges: on every change it rewrites the full
// edge set of the affected relationship types, so the index never needs
// per-edge diffing. Indexing failures are logged and never fail the
// already-committed write.
type IndexHook struct {
	dao      EdgeDao
	registry *registry.Registry
	log      *logger.Logger
}

func NewIndexHook(dao EdgeDao, reg *registry.Registry, baseLog *logger.Logger) *IndexHook {
	return &IndexHook{dao: dao, registry: reg, log: baseLog.With("service", "GraphIndexHook")}
}

var _ store.Emitter = (*IndexHook)(nil)

func (h *IndexHook) Emit(ctx context.Context, event domain.ChangeEvent) error {
	if err := h.apply(ctx, event); err != nil {
		h.log.Error("Graph index update failed",
			"urn", event.Urn.String(), "aspect", event.AspectName, "error", err)
	}
	return nil
}

func (h *IndexHook) apply(ctx context.Context, event domain.ChangeEvent) error {
	// Entity-level removals first: a deleted key aspect or a removed-status
	// write takes the node out of the graph entirely.
	if event.Operation == domain.ChangeDelete {
		keyName, err := h.registry.KeyAspectName(event.Urn.EntityType())
		if err == nil && event.AspectName == keyName {
			return h.dao.RemoveNode(ctx, event.Urn)
		}
	}
	if status, ok := event.NewValue.(*domain.Status); ok && status.Removed {
		return h.dao.RemoveNode(ctx, event.Urn)
	}

	oldRels := h.extract(event.Urn, event.AspectName, event.OldValue)
	var newRels []registry.ExtractedRelationship
	if event.Operation != domain.ChangeDelete {
		newRels = h.extract(event.Urn, event.AspectName, event.NewValue)
	}
	if len(oldRels) == 0 && len(newRels) == 0 {
		return nil
	}

	// Remove-then-add per relationship type: the new aspect value is the
	// complete truth for the types it declares.
	types := make(map[string]struct{})
	for _, rel := range oldRels {
		types[rel.Type] = struct{}{}
	}
	for _, rel := range newRels {
		types[rel.Type] = struct{}{}
	}
	typeList := make([]string, 0, len(types))
	for t := range types {
		typeList = append(typeList, t)
	}
	if err := h.dao.RemoveEdgesFromNode(ctx, event.Urn, typeList, domain.DirectionOutgoing); err != nil {
		return err
	}

	stamp := event.Audit
	for _, rel := range newRels {
		edge := domain.Edge{
			Source:           event.Urn,
			Destination:      rel.Destination,
			RelationshipType: rel.Type,
			Created:          stamp,
			Updated:          stamp,
			Via:              rel.Via,
		}
		if err := h.dao.AddEdge(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

// extract pulls relationship declarations out of a typed aspect value.
// Extraction failures degrade to "no relationships" with a log line rather
// than blocking the event stream.
func (h *IndexHook) extract(urn domain.Urn, aspectName string, value domain.AspectValue) []registry.ExtractedRelationship {
	if value == nil {
		return nil
	}
	rels, err := registry.ExtractRelationships(value)
	if err != nil {
		h.log.Warn("Skipping unextractable relationships",
			"urn", urn.String(), "aspect", aspectName, "error", err)
		return nil
	}
	return rels
}
