package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
	"github.com/yungbote/metagraph-backend/internal/platform/neo4jdb"
)

// Neo4jEdgeDao stores edges as typed relationships between :Entity nodes
// keyed by urn. Relationship types become relationship labels, so they are
// restricted to identifier characters.
//
// Unsupported query shapes fail fast instead of silently narrowing:
// FindRelatedEntities rejects empty relationship-type sets and filters with
// more than one conjunctive clause or non-urn fields with
// pkgerrors.ErrUnsupported.
type Neo4jEdgeDao struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jEdgeDao(client *neo4jdb.Client, baseLog *logger.Logger) *Neo4jEdgeDao {
	return &Neo4jEdgeDao{client: client, log: baseLog.With("dao", "Neo4jEdgeDao")}
}

var _ EdgeDao = (*Neo4jEdgeDao)(nil)

func (d *Neo4jEdgeDao) AddEdge(ctx context.Context, edge domain.Edge) error {
	relType, err := relTypeIdentifier(edge.RelationshipType)
	if err != nil {
		return err
	}
	via := ""
	if edge.Via != nil {
		via = edge.Via.String()
	}
	params := map[string]any{
		"src":          edge.Source.String(),
		"srcType":      edge.Source.EntityType(),
		"dst":          edge.Destination.String(),
		"dstType":      edge.Destination.EntityType(),
		"createdOn":    edge.Created.Time,
		"createdActor": edge.Created.Actor,
		"updatedOn":    edge.Updated.Time,
		"updatedActor": edge.Updated.Actor,
		"via":          via,
	}
	query := fmt.Sprintf(`
MERGE (a:Entity {urn: $src}) SET a.entityType = $srcType
MERGE (b:Entity {urn: $dst}) SET b.entityType = $dstType
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.createdOn = $createdOn, r.createdActor = $createdActor
SET r.updatedOn = $updatedOn, r.updatedActor = $updatedActor, r.via = $via`, relType)

	return d.write(ctx, query, params)
}

func (d *Neo4jEdgeDao) RemoveEdgesFromNode(ctx context.Context, urn domain.Urn, relationshipTypes []string, direction domain.RelationshipDirection) error {
	relPattern, err := relPatternFor(relationshipTypes)
	if err != nil {
		return err
	}
	pattern, err := directedPattern("(a:Entity {urn: $urn})", relPattern, "()", direction)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("MATCH %s DELETE r", pattern)
	return d.write(ctx, query, map[string]any{"urn": urn.String()})
}

func (d *Neo4jEdgeDao) RemoveNode(ctx context.Context, urn domain.Urn) error {
	return d.write(ctx, "MATCH (a:Entity {urn: $urn}) DETACH DELETE a", map[string]any{"urn": urn.String()})
}

func (d *Neo4jEdgeDao) Clear(ctx context.Context) error {
	return d.write(ctx, "MATCH (a:Entity) DETACH DELETE a", nil)
}

func (d *Neo4jEdgeDao) EdgesForNodes(ctx context.Context, urns []domain.Urn, filters []EdgeTypeFilter) ([]domain.Edge, error) {
	if len(urns) == 0 || len(filters) == 0 {
		return nil, nil
	}
	urnStrings := make([]string, len(urns))
	for i, u := range urns {
		urnStrings[i] = u.String()
	}

	// One query per traversal direction, each covering every relationship
	// type requested in that direction.
	byDirection := make(map[domain.RelationshipDirection][]string)
	for _, f := range filters {
		byDirection[f.Direction] = append(byDirection[f.Direction], f.RelationshipType)
	}

	session := d.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: d.client.Database,
	})
	defer session.Close(ctx)

	var out []domain.Edge
	seen := make(map[string]struct{})
	for direction, types := range byDirection {
		relPattern, err := relPatternFor(types)
		if err != nil {
			return nil, err
		}
		pattern, err := directedPattern("(a:Entity)", relPattern, "(b:Entity)", direction)
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf(`
MATCH %s
WHERE a.urn IN $urns
RETURN startNode(r).urn AS src, endNode(r).urn AS dst, type(r) AS relType,
       r.createdOn AS createdOn, r.createdActor AS createdActor,
       r.updatedOn AS updatedOn, r.updatedActor AS updatedActor,
       r.via AS via`, pattern)

		records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, query, map[string]any{"urns": urnStrings})
			if err != nil {
				return nil, err
			}
			return res.Collect(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: neo4j edge fetch: %v", pkgerrors.ErrBackend, err)
		}
		for _, record := range records.([]*neo4j.Record) {
			edge, err := edgeFromRecord(record)
			if err != nil {
				return nil, err
			}
			key := edge.Source.String() + "|" + edge.Destination.String() + "|" + edge.RelationshipType
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, edge)
		}
	}
	return out, nil
}

func (d *Neo4jEdgeDao) FindRelatedEntities(ctx context.Context, sourceTypes []string, sourceFilter domain.Filter, destinationTypes []string, destinationFilter domain.Filter, relationshipTypes []string, relFilter domain.RelationshipFilter, start, count int) (*domain.RelatedEntitiesResult, error) {
	if len(relationshipTypes) == 0 {
		return nil, fmt.Errorf("%w: neo4j related-entity queries need at least one relationship type", pkgerrors.ErrUnsupported)
	}
	sourceUrns, err := urnCriteria(sourceFilter)
	if err != nil {
		return nil, err
	}
	destinationUrns, err := urnCriteria(destinationFilter)
	if err != nil {
		return nil, err
	}
	relPattern, err := relPatternFor(relationshipTypes)
	if err != nil {
		return nil, err
	}
	pattern, err := directedPattern("(a:Entity)", relPattern, "(b:Entity)", relFilter.Direction)
	if err != nil {
		return nil, err
	}

	var where []string
	params := map[string]any{"start": start, "count": count}
	if len(sourceUrns) > 0 {
		where = append(where, "a.urn IN $sourceUrns")
		params["sourceUrns"] = sourceUrns
	}
	if len(sourceTypes) > 0 {
		where = append(where, "a.entityType IN $sourceTypes")
		params["sourceTypes"] = sourceTypes
	}
	if len(destinationUrns) > 0 {
		where = append(where, "b.urn IN $destinationUrns")
		params["destinationUrns"] = destinationUrns
	}
	if len(destinationTypes) > 0 {
		where = append(where, "b.entityType IN $destinationTypes")
		params["destinationTypes"] = destinationTypes
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQuery := fmt.Sprintf(`
MATCH %s %s
WITH DISTINCT b.urn AS urn, type(r) AS relType
RETURN count(*) AS total`, pattern, whereClause)
	query := fmt.Sprintf(`
MATCH %s %s
WITH DISTINCT b.urn AS urn, type(r) AS relType, r.via AS via
ORDER BY urn, relType
RETURN urn, relType, via
SKIP $start LIMIT $count`, pattern, whereClause)

	session := d.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: d.client.Database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		countRes, err := tx.Run(ctx, countQuery, params)
		if err != nil {
			return nil, err
		}
		countRecord, err := countRes.Single(ctx)
		if err != nil {
			return nil, err
		}
		total := int(countRecord.Values[0].(int64))

		pageRes, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := pageRes.Collect(ctx)
		if err != nil {
			return nil, err
		}

		entities := make([]domain.RelatedEntity, 0, len(records))
		for _, record := range records {
			urn, err := domain.ParseUrn(record.Values[0].(string))
			if err != nil {
				return nil, err
			}
			entity := domain.RelatedEntity{RelationshipType: record.Values[1].(string), Urn: urn}
			if via, ok := record.Values[2].(string); ok && via != "" {
				viaUrn, err := domain.ParseUrn(via)
				if err == nil {
					entity.Via = &viaUrn
				}
			}
			entities = append(entities, entity)
		}
		return &domain.RelatedEntitiesResult{
			Start:    start,
			Count:    len(entities),
			Total:    total,
			Entities: entities,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: neo4j related-entity query: %v", pkgerrors.ErrBackend, err)
	}
	return result.(*domain.RelatedEntitiesResult), nil
}

func (d *Neo4jEdgeDao) write(ctx context.Context, query string, params map[string]any) error {
	session := d.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: d.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: neo4j edge write: %v", pkgerrors.ErrBackend, err)
	}
	return nil
}

func edgeFromRecord(record *neo4j.Record) (domain.Edge, error) {
	src, err := domain.ParseUrn(record.Values[0].(string))
	if err != nil {
		return domain.Edge{}, err
	}
	dst, err := domain.ParseUrn(record.Values[1].(string))
	if err != nil {
		return domain.Edge{}, err
	}
	edge := domain.Edge{
		Source:           src,
		Destination:      dst,
		RelationshipType: record.Values[2].(string),
	}
	if v, ok := record.Values[3].(int64); ok {
		edge.Created.Time = v
	}
	if v, ok := record.Values[4].(string); ok {
		edge.Created.Actor = v
	}
	if v, ok := record.Values[5].(int64); ok {
		edge.Updated.Time = v
	}
	if v, ok := record.Values[6].(string); ok {
		edge.Updated.Actor = v
	}
	if via, ok := record.Values[7].(string); ok && via != "" {
		if viaUrn, err := domain.ParseUrn(via); err == nil {
			edge.Via = &viaUrn
		}
	}
	return edge, nil
}

// urnCriteria flattens a filter to a set of urn values. Anything beyond a
// single conjunctive clause of urn terms has no cypher translation here.
func urnCriteria(filter domain.Filter) ([]string, error) {
	if filter.IsEmpty() {
		return nil, nil
	}
	if len(filter.Or) > 1 {
		return nil, fmt.Errorf("%w: neo4j backend supports a single conjunctive filter clause", pkgerrors.ErrUnsupported)
	}
	var urns []string
	for _, criterion := range filter.Or[0].And {
		if criterion.Field != "urn" {
			return nil, fmt.Errorf("%w: neo4j backend filters on urn only, got field %q", pkgerrors.ErrUnsupported, criterion.Field)
		}
		if len(criterion.Values) > 0 {
			urns = append(urns, criterion.Values...)
		} else if criterion.Value != "" {
			urns = append(urns, criterion.Value)
		}
	}
	return urns, nil
}

func relPatternFor(relationshipTypes []string) (string, error) {
	if len(relationshipTypes) == 0 {
		return "[r]", nil
	}
	idents := make([]string, len(relationshipTypes))
	for i, t := range relationshipTypes {
		ident, err := relTypeIdentifier(t)
		if err != nil {
			return "", err
		}
		idents[i] = ident
	}
	return "[r:" + strings.Join(idents, "|") + "]", nil
}

func directedPattern(left, rel, right string, direction domain.RelationshipDirection) (string, error) {
	switch direction {
	case domain.DirectionOutgoing:
		return left + "-" + rel + "->" + right, nil
	case domain.DirectionIncoming:
		return left + "<-" + rel + "-" + right, nil
	case domain.DirectionUndirected:
		return left + "-" + rel + "-" + right, nil
	default:
		return "", fmt.Errorf("%w: relationship direction %q", pkgerrors.ErrInvalidArgument, direction)
	}
}

// relTypeIdentifier guards the dynamic relationship label interpolated into
// cypher text. Parameters cannot carry labels, so the name itself must be a
// plain identifier.
func relTypeIdentifier(relType string) (string, error) {
	if relType == "" {
		return "", fmt.Errorf("%w: empty relationship type", pkgerrors.ErrInvalidArgument)
	}
	for _, r := range relType {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return "", fmt.Errorf("%w: relationship type %q is not a plain identifier", pkgerrors.ErrInvalidArgument, relType)
		}
	}
	return relType, nil
}
