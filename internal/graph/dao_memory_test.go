package graph

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

func TestMemoryEdgeDao_AddEdgeUpserts(t *testing.T) {
	dao := NewMemoryEdgeDao()
	ctx := context.Background()

	first := domain.Edge{
		Source:           dsA,
		Destination:      dsB,
		RelationshipType: "DownstreamOf",
		Created:          domain.AuditStamp{Time: 100},
		Updated:          domain.AuditStamp{Time: 100},
	}
	require.NoError(t, dao.AddEdge(ctx, first))

	via := domain.MustParseUrn("urn:li:dataJob:(urn:li:dataFlow:(airflow,etl,prod),load)")
	second := first
	second.Created = domain.AuditStamp{Time: 200}
	second.Updated = domain.AuditStamp{Time: 200}
	second.Via = &via
	require.NoError(t, dao.AddEdge(ctx, second))

	edges, err := dao.EdgesForNodes(ctx, []domain.Urn{dsA},
		[]EdgeTypeFilter{{RelationshipType: "DownstreamOf", Direction: domain.DirectionOutgoing}})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, int64(100), edges[0].Created.Time)
	require.Equal(t, int64(200), edges[0].Updated.Time)
	require.NotNil(t, edges[0].Via)
}

func TestMemoryEdgeDao_RemoveEdgesFromNodeScoping(t *testing.T) {
	dao := NewMemoryEdgeDao()
	ctx := context.Background()
	alice := domain.MustParseUrn("urn:li:corpuser:alice")

	require.NoError(t, dao.AddEdge(ctx, domain.Edge{Source: dsA, Destination: dsB, RelationshipType: "DownstreamOf"}))
	require.NoError(t, dao.AddEdge(ctx, domain.Edge{Source: dsA, Destination: alice, RelationshipType: "OwnedBy"}))
	require.NoError(t, dao.AddEdge(ctx, domain.Edge{Source: dsC, Destination: dsA, RelationshipType: "DownstreamOf"}))

	// Outgoing removal of one type leaves the other type and the incoming
	// edge alone.
	require.NoError(t, dao.RemoveEdgesFromNode(ctx, dsA, []string{"DownstreamOf"}, domain.DirectionOutgoing))

	out, err := dao.EdgesForNodes(ctx, []domain.Urn{dsA}, []EdgeTypeFilter{
		{RelationshipType: "DownstreamOf", Direction: domain.DirectionUndirected},
		{RelationshipType: "OwnedBy", Direction: domain.DirectionOutgoing},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, edge := range out {
		if edge.RelationshipType == "DownstreamOf" {
			require.True(t, edge.Source.Equal(dsC))
		}
	}

	// Empty type set removes every type in the given direction.
	require.NoError(t, dao.RemoveEdgesFromNode(ctx, dsA, nil, domain.DirectionUndirected))
	out, err = dao.EdgesForNodes(ctx, []domain.Urn{dsA}, []EdgeTypeFilter{
		{RelationshipType: "DownstreamOf", Direction: domain.DirectionUndirected},
		{RelationshipType: "OwnedBy", Direction: domain.DirectionUndirected},
	})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestMemoryEdgeDao_FindRelatedEntities(t *testing.T) {
	dao := NewMemoryEdgeDao()
	ctx := context.Background()
	alice := domain.MustParseUrn("urn:li:corpuser:alice")

	require.NoError(t, dao.AddEdge(ctx, domain.Edge{Source: dsA, Destination: dsB, RelationshipType: "DownstreamOf"}))
	require.NoError(t, dao.AddEdge(ctx, domain.Edge{Source: dsC, Destination: dsB, RelationshipType: "DownstreamOf"}))
	require.NoError(t, dao.AddEdge(ctx, domain.Edge{Source: dsA, Destination: alice, RelationshipType: "OwnedBy"}))

	// Incoming DownstreamOf at B: the two sources.
	result, err := dao.FindRelatedEntities(ctx,
		nil, domain.NewFilter(domain.Criterion{Field: "urn", Value: dsB.String()}),
		nil, domain.Filter{},
		[]string{"DownstreamOf"}, domain.RelationshipFilter{Direction: domain.DirectionIncoming}, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	require.True(t, result.Entities[0].Urn.Equal(dsA))
	require.True(t, result.Entities[1].Urn.Equal(dsC))

	// Destination entity-type scoping.
	result, err = dao.FindRelatedEntities(ctx,
		nil, domain.NewFilter(domain.Criterion{Field: "urn", Value: dsA.String()}),
		[]string{"corpuser"}, domain.Filter{},
		nil, domain.RelationshipFilter{Direction: domain.DirectionOutgoing}, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	require.Equal(t, "OwnedBy", result.Entities[0].RelationshipType)

	// Pagination.
	result, err = dao.FindRelatedEntities(ctx,
		nil, domain.Filter{}, nil, domain.Filter{},
		[]string{"DownstreamOf"}, domain.RelationshipFilter{Direction: domain.DirectionIncoming}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	require.Equal(t, 1, result.Count)
	require.Equal(t, 1, result.Start)
	require.True(t, result.Entities[0].Urn.Equal(dsC))
}

func TestMemoryEdgeDao_RemoveNodeDropsBothSides(t *testing.T) {
	dao := NewMemoryEdgeDao()
	ctx := context.Background()

	require.NoError(t, dao.AddEdge(ctx, domain.Edge{Source: dsA, Destination: dsB, RelationshipType: "DownstreamOf"}))
	require.NoError(t, dao.AddEdge(ctx, domain.Edge{Source: dsC, Destination: dsA, RelationshipType: "DownstreamOf"}))
	require.NoError(t, dao.RemoveNode(ctx, dsA))

	edges, err := dao.EdgesForNodes(ctx, []domain.Urn{dsA, dsB, dsC},
		[]EdgeTypeFilter{{RelationshipType: "DownstreamOf", Direction: domain.DirectionUndirected}})
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestMemoryEdgeDao_ConcurrentWriters(t *testing.T) {
	dao := NewMemoryEdgeDao()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dst := domain.MustParseUrn(fmt.Sprintf("urn:li:dataset:(urn:li:dataPlatform:hive,db.t%d,PROD)", i))
			_ = dao.AddEdge(ctx, domain.Edge{Source: dsA, Destination: dst, RelationshipType: "DownstreamOf"})
		}(i)
	}
	wg.Wait()

	edges, err := dao.EdgesForNodes(ctx, []domain.Urn{dsA},
		[]EdgeTypeFilter{{RelationshipType: "DownstreamOf", Direction: domain.DirectionOutgoing}})
	require.NoError(t, err)
	require.Len(t, edges, 20)
}
