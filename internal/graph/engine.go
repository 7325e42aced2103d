package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
	"github.com/yungbote/metagraph-backend/internal/registry"
)

// Engine answers multi-hop lineage and ad-hoc relationship queries over the
// edge index, constrained by the lineage registry's legal edge sets.
type Engine struct {
	dao     EdgeDao
	lineage *registry.LineageRegistry
	cache   LineageCache
	log     *logger.Logger
}

func NewEngine(dao EdgeDao, lineage *registry.LineageRegistry, cache LineageCache, baseLog *logger.Logger) *Engine {
	if cache == nil {
		cache = NopLineageCache{}
	}
	return &Engine{
		dao:     dao,
		lineage: lineage,
		cache:   cache,
		log:     baseLog.With("service", "GraphQueryEngine"),
	}
}

// GetLineage runs a level-order traversal from urn, following only the edge
// types the lineage registry declares legal for each visited entity type in
// the requested direction. The first discovered path to an entity wins; the
// complete result is cached unpaginated and offset/count slice it. A
// cancelled context aborts remaining levels and returns the levels already
// completed.
func (e *Engine) GetLineage(ctx context.Context, urn domain.Urn, direction domain.LineageDirection, offset, count, maxHops int) (*domain.EntityLineageResult, error) {
	if urn.IsZero() {
		return nil, fmt.Errorf("%w: zero urn", pkgerrors.ErrInvalidArgument)
	}
	if direction != domain.LineageUpstream && direction != domain.LineageDownstream {
		return nil, fmt.Errorf("%w: lineage direction %q", pkgerrors.ErrInvalidArgument, direction)
	}
	if maxHops <= 0 {
		maxHops = 1
	}

	key := lineageCacheKey(urn, direction, maxHops)
	if full, ok := e.cache.Get(ctx, key); ok {
		return paginateLineage(full, offset, count), nil
	}

	full, complete, err := e.traverse(ctx, urn, direction, maxHops)
	if err != nil {
		return nil, err
	}
	// Only complete traversals may be cached: a cut-short result stored
	// under the key would serve truncated totals to healthy callers.
	if complete {
		e.cache.Set(ctx, key, full)
	}
	return paginateLineage(full, offset, count), nil
}

// FindRelatedEntities is a single-hop query passthrough to the edge index.
func (e *Engine) FindRelatedEntities(ctx context.Context, sourceTypes []string, sourceFilter domain.Filter, destinationTypes []string, destinationFilter domain.Filter, relationshipTypes []string, relFilter domain.RelationshipFilter, start, count int) (*domain.RelatedEntitiesResult, error) {
	return e.dao.FindRelatedEntities(ctx, sourceTypes, sourceFilter, destinationTypes, destinationFilter, relationshipTypes, relFilter, start, count)
}

// visit tracks the discovery record of one reached urn.
type visit struct {
	path    []domain.Urn
	relType string
	degree  int
}

// traverse walks the lineage graph level by level. The boolean reports
// whether every requested level ran; a traversal cut short by context
// cancellation returns the completed levels with complete=false.
func (e *Engine) traverse(ctx context.Context, start domain.Urn, direction domain.LineageDirection, maxHops int) (*domain.EntityLineageResult, bool, error) {
	visited := map[string]visit{start.String(): {}}
	frontier := []domain.Urn{start}
	var discovered []domain.LineageRelationship
	complete := true

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		if ctx.Err() != nil {
			e.log.Warn("Lineage traversal cut short",
				"urn", start.String(), "direction", string(direction), "completedHops", hop-1)
			complete = false
			break
		}

		// Legal edge types differ per entity type, so the frontier is
		// grouped and each group queried with its own filter set.
		groups := make(map[string][]domain.Urn)
		for _, node := range frontier {
			groups[node.EntityType()] = append(groups[node.EntityType()], node)
		}

		type groupResult struct {
			entityType string
			nodes      map[string]struct{}
			filters    []EdgeTypeFilter
			edges      []domain.Edge
		}
		var mu sync.Mutex
		var results []groupResult

		g, gctx := errgroup.WithContext(ctx)
		for entityType, nodes := range groups {
			infos := e.lineage.EdgesFor(entityType, direction)
			if len(infos) == 0 {
				continue
			}
			filters := make([]EdgeTypeFilter, len(infos))
			for i, info := range infos {
				filters[i] = EdgeTypeFilter{RelationshipType: info.Type, Direction: info.Direction}
			}
			entityType, nodes := entityType, nodes
			g.Go(func() error {
				edges, err := e.dao.EdgesForNodes(gctx, nodes, filters)
				if err != nil {
					return err
				}
				nodeSet := make(map[string]struct{}, len(nodes))
				for _, n := range nodes {
					nodeSet[n.String()] = struct{}{}
				}
				mu.Lock()
				results = append(results, groupResult{entityType: entityType, nodes: nodeSet, filters: filters, edges: edges})
				mu.Unlock()
				return nil
			})
		}
		// Level barrier: no group's discoveries advance until every group
		// of this level has answered.
		if err := g.Wait(); err != nil {
			return nil, false, err
		}

		// Deterministic order across the level keeps first-path-wins stable.
		sort.Slice(results, func(i, j int) bool {
			return results[i].entityType < results[j].entityType
		})

		var next []domain.Urn
		for _, res := range results {
			edges := append([]domain.Edge(nil), res.edges...)
			sort.Slice(edges, func(i, j int) bool { return edgeKey(edges[i]) < edgeKey(edges[j]) })
			for _, edge := range edges {
				node, neighbor, ok := orient(edge, res.nodes, res.filters)
				if !ok {
					continue
				}
				if _, seen := visited[neighbor.String()]; seen {
					continue
				}
				parent := visited[node.String()]
				path := append([]domain.Urn(nil), parent.path...)
				if !node.Equal(start) {
					path = append(path, node)
				}
				visited[neighbor.String()] = visit{path: path, relType: edge.RelationshipType, degree: hop}
				discovered = append(discovered, domain.LineageRelationship{
					Type:   edge.RelationshipType,
					Entity: neighbor,
					Path:   path,
					Degree: hop,
				})
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	sort.Slice(discovered, func(i, j int) bool {
		if discovered[i].Degree != discovered[j].Degree {
			return discovered[i].Degree < discovered[j].Degree
		}
		return discovered[i].Entity.String() < discovered[j].Entity.String()
	})
	return &domain.EntityLineageResult{
		Total:         len(discovered),
		Relationships: discovered,
	}, complete, nil
}

// orient resolves which endpoint of edge is the queried node and which the
// neighbor, under the hop filters of this group. An edge whose orientation
// matches no filter is illegal for this group and skipped.
func orient(edge domain.Edge, nodes map[string]struct{}, filters []EdgeTypeFilter) (node, neighbor domain.Urn, ok bool) {
	for _, f := range filters {
		if f.RelationshipType != edge.RelationshipType {
			continue
		}
		switch f.Direction {
		case domain.DirectionOutgoing, domain.DirectionUndirected:
			if _, in := nodes[edge.Source.String()]; in {
				return edge.Source, edge.Destination, true
			}
		}
		switch f.Direction {
		case domain.DirectionIncoming, domain.DirectionUndirected:
			if _, in := nodes[edge.Destination.String()]; in {
				return edge.Destination, edge.Source, true
			}
		}
	}
	return domain.Urn{}, domain.Urn{}, false
}

func edgeKey(edge domain.Edge) string {
	return edge.Source.String() + "|" + edge.RelationshipType + "|" + edge.Destination.String()
}

// paginateLineage slices a complete cached result into one page.
func paginateLineage(full *domain.EntityLineageResult, offset, count int) *domain.EntityLineageResult {
	page := pageSlice(full.Relationships, offset, count)
	return &domain.EntityLineageResult{
		Start:         offset,
		Count:         len(page),
		Total:         full.Total,
		Relationships: page,
	}
}
