package graph

import (
	"context"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

// EdgeTypeFilter names one legal hop for a batch edge fetch: a relationship
// type and the direction it must be traversed in, relative to the queried
// nodes.
type EdgeTypeFilter struct {
	RelationshipType string
	Direction        domain.RelationshipDirection
}

// EdgeDao is the backend-agnostic edge index. Edges are derived records
// owned by the graph index hook; the query engine only reads them. The
// current set of edges for a (source, relationshipType) pair is the current
// truth, so writers replace rather than version.
type EdgeDao interface {
	// AddEdge upserts by (source, destination, relationshipType): an
	// existing edge keeps its created stamp and refreshes updated/via.
	AddEdge(ctx context.Context, edge domain.Edge) error
	// RemoveEdgesFromNode drops the edges touching urn whose relationship
	// type is in relationshipTypes (empty means all) on the given side.
	RemoveEdgesFromNode(ctx context.Context, urn domain.Urn, relationshipTypes []string, direction domain.RelationshipDirection) error
	// RemoveNode drops every edge touching urn on either side.
	RemoveNode(ctx context.Context, urn domain.Urn) error
	Clear(ctx context.Context) error
	// EdgesForNodes fetches, in one round trip, every edge touching any of
	// the urns under any of the hop filters. The BFS engine calls this once
	// per (level, entity type).
	EdgesForNodes(ctx context.Context, urns []domain.Urn, filters []EdgeTypeFilter) ([]domain.Edge, error)
	// FindRelatedEntities answers single-hop relationship queries: entities
	// connected to anything matching sourceFilter via one of
	// relationshipTypes, honoring the direction in relFilter. Results are
	// urn-ordered and paginated.
	FindRelatedEntities(ctx context.Context, sourceTypes []string, sourceFilter domain.Filter, destinationTypes []string, destinationFilter domain.Filter, relationshipTypes []string, relFilter domain.RelationshipFilter, start, count int) (*domain.RelatedEntitiesResult, error)
}
