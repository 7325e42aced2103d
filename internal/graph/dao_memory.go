package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

// MemoryEdgeDao is the in-memory edge index: mutex-guarded, safe for
// concurrent writers, used by unit tests and usable as an embedded backend.
type MemoryEdgeDao struct {
	mu       sync.RWMutex
	bySource map[string][]*domain.Edge
	byDest   map[string][]*domain.Edge
}

func NewMemoryEdgeDao() *MemoryEdgeDao {
	return &MemoryEdgeDao{
		bySource: make(map[string][]*domain.Edge),
		byDest:   make(map[string][]*domain.Edge),
	}
}

var _ EdgeDao = (*MemoryEdgeDao)(nil)

func (d *MemoryEdgeDao) AddEdge(ctx context.Context, edge domain.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	src := edge.Source.String()
	for _, existing := range d.bySource[src] {
		if existing.Destination.Equal(edge.Destination) && existing.RelationshipType == edge.RelationshipType {
			existing.Updated = edge.Updated
			existing.Via = edge.Via
			return nil
		}
	}
	stored := edge
	d.bySource[src] = append(d.bySource[src], &stored)
	dst := edge.Destination.String()
	d.byDest[dst] = append(d.byDest[dst], &stored)
	return nil
}

func (d *MemoryEdgeDao) RemoveEdgesFromNode(ctx context.Context, urn domain.Urn, relationshipTypes []string, direction domain.RelationshipDirection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	types := toSet(relationshipTypes)

	d.mu.Lock()
	defer d.mu.Unlock()

	key := urn.String()
	if direction == domain.DirectionOutgoing || direction == domain.DirectionUndirected {
		for _, edge := range append([]*domain.Edge(nil), d.bySource[key]...) {
			if typeMatches(types, edge.RelationshipType) {
				d.removeLocked(edge)
			}
		}
	}
	if direction == domain.DirectionIncoming || direction == domain.DirectionUndirected {
		for _, edge := range append([]*domain.Edge(nil), d.byDest[key]...) {
			if typeMatches(types, edge.RelationshipType) {
				d.removeLocked(edge)
			}
		}
	}
	return nil
}

func (d *MemoryEdgeDao) RemoveNode(ctx context.Context, urn domain.Urn) error {
	return d.RemoveEdgesFromNode(ctx, urn, nil, domain.DirectionUndirected)
}

func (d *MemoryEdgeDao) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bySource = make(map[string][]*domain.Edge)
	d.byDest = make(map[string][]*domain.Edge)
	return nil
}

func (d *MemoryEdgeDao) EdgesForNodes(ctx context.Context, urns []domain.Urn, filters []EdgeTypeFilter) ([]domain.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []domain.Edge
	collect := func(edge *domain.Edge) {
		key := edge.Source.String() + "|" + edge.Destination.String() + "|" + edge.RelationshipType
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, *edge)
	}

	for _, urn := range urns {
		key := urn.String()
		for _, f := range filters {
			if f.Direction == domain.DirectionOutgoing || f.Direction == domain.DirectionUndirected {
				for _, edge := range d.bySource[key] {
					if edge.RelationshipType == f.RelationshipType {
						collect(edge)
					}
				}
			}
			if f.Direction == domain.DirectionIncoming || f.Direction == domain.DirectionUndirected {
				for _, edge := range d.byDest[key] {
					if edge.RelationshipType == f.RelationshipType {
						collect(edge)
					}
				}
			}
		}
	}
	return out, nil
}

func (d *MemoryEdgeDao) FindRelatedEntities(ctx context.Context, sourceTypes []string, sourceFilter domain.Filter, destinationTypes []string, destinationFilter domain.Filter, relationshipTypes []string, relFilter domain.RelationshipFilter, start, count int) (*domain.RelatedEntitiesResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	types := toSet(relationshipTypes)

	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	var hits []domain.RelatedEntity
	consider := func(node, related domain.Urn, edge *domain.Edge) {
		if !typeMatches(types, edge.RelationshipType) {
			return
		}
		if !nodeMatches(node, sourceTypes, sourceFilter) {
			return
		}
		if !nodeMatches(related, destinationTypes, destinationFilter) {
			return
		}
		key := edge.RelationshipType + "|" + related.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		hits = append(hits, domain.RelatedEntity{
			RelationshipType: edge.RelationshipType,
			Urn:              related,
			Via:              edge.Via,
		})
	}

	direction := relFilter.Direction
	for _, edges := range d.bySource {
		for _, edge := range edges {
			if direction == domain.DirectionOutgoing || direction == domain.DirectionUndirected {
				consider(edge.Source, edge.Destination, edge)
			}
			if direction == domain.DirectionIncoming || direction == domain.DirectionUndirected {
				consider(edge.Destination, edge.Source, edge)
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Urn.String() != hits[j].Urn.String() {
			return hits[i].Urn.String() < hits[j].Urn.String()
		}
		return hits[i].RelationshipType < hits[j].RelationshipType
	})

	total := len(hits)
	page := pageSlice(hits, start, count)
	return &domain.RelatedEntitiesResult{
		Start:    start,
		Count:    len(page),
		Total:    total,
		Entities: page,
	}, nil
}

// removeLocked detaches an edge from both indexes. Caller holds the lock.
func (d *MemoryEdgeDao) removeLocked(edge *domain.Edge) {
	src := edge.Source.String()
	d.bySource[src] = dropEdge(d.bySource[src], edge)
	if len(d.bySource[src]) == 0 {
		delete(d.bySource, src)
	}
	dst := edge.Destination.String()
	d.byDest[dst] = dropEdge(d.byDest[dst], edge)
	if len(d.byDest[dst]) == 0 {
		delete(d.byDest, dst)
	}
}

func dropEdge(edges []*domain.Edge, victim *domain.Edge) []*domain.Edge {
	for i, e := range edges {
		if e == victim {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// typeMatches treats a nil set as "all types".
func typeMatches(set map[string]struct{}, relType string) bool {
	if set == nil {
		return true
	}
	_, ok := set[relType]
	return ok
}

func nodeMatches(urn domain.Urn, entityTypes []string, filter domain.Filter) bool {
	if len(entityTypes) > 0 {
		found := false
		for _, t := range entityTypes {
			if urn.EntityType() == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsEmpty() {
		return true
	}
	for _, clause := range filter.Or {
		all := true
		for _, criterion := range clause.And {
			if criterion.Field != "urn" || !criterion.Matches(urn.String()) {
				all = false
				break
			}
		}
		if all && len(clause.And) > 0 {
			return true
		}
	}
	return false
}

func pageSlice[T any](items []T, start, count int) []T {
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return nil
	}
	end := start + count
	if count <= 0 || end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[start:end]...)
}
