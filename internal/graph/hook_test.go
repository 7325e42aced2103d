package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/metagraph-backend/internal/domain"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
	"github.com/yungbote/metagraph-backend/internal/registry"
)

func newTestHook(t *testing.T) (*IndexHook, *MemoryEdgeDao) {
	t.Helper()
	reg, err := registry.Load([]byte(graphTestYAML), nil)
	require.NoError(t, err)
	dao := NewMemoryEdgeDao()
	return NewIndexHook(dao, reg, logger.NewNop()), dao
}

func upstreamValue(datasets ...string) *domain.UpstreamLineage {
	v := &domain.UpstreamLineage{}
	for _, ds := range datasets {
		v.Upstreams = append(v.Upstreams, domain.Upstream{Dataset: ds})
	}
	return v
}

func outgoingEdges(t *testing.T, dao *MemoryEdgeDao, urn domain.Urn, relType string) []domain.Edge {
	t.Helper()
	edges, err := dao.EdgesForNodes(context.Background(), []domain.Urn{urn},
		[]EdgeTypeFilter{{RelationshipType: relType, Direction: domain.DirectionOutgoing}})
	require.NoError(t, err)
	return edges
}

func TestIndexHook_UpsertWritesDeclaredEdges(t *testing.T) {
	hook, dao := newTestHook(t)

	require.NoError(t, hook.Emit(context.Background(), domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   upstreamValue(dsB.String(), dsC.String()),
	}))

	edges := outgoingEdges(t, dao, dsA, "DownstreamOf")
	require.Len(t, edges, 2)
}

func TestIndexHook_RewriteReplacesStaleEdges(t *testing.T) {
	hook, dao := newTestHook(t)
	ctx := context.Background()

	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   upstreamValue(dsB.String()),
	}))
	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		OldValue:   upstreamValue(dsB.String()),
		NewValue:   upstreamValue(dsC.String()),
	}))

	edges := outgoingEdges(t, dao, dsA, "DownstreamOf")
	require.Len(t, edges, 1)
	require.True(t, edges[0].Destination.Equal(dsC))
}

func TestIndexHook_RewriteScopedToDeclaredTypes(t *testing.T) {
	hook, dao := newTestHook(t)
	ctx := context.Background()

	owner := domain.MustParseUrn("urn:li:corpuser:alice")
	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.OwnershipAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   &domain.Ownership{Owners: []domain.Owner{{Owner: owner.String()}}},
	}))
	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   upstreamValue(dsB.String()),
	}))

	// Rewriting lineage leaves the ownership edge untouched.
	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		OldValue:   upstreamValue(dsB.String()),
		NewValue:   upstreamValue(dsC.String()),
	}))
	require.Len(t, outgoingEdges(t, dao, dsA, "OwnedBy"), 1)
	require.Len(t, outgoingEdges(t, dao, dsA, "DownstreamOf"), 1)
}

func TestIndexHook_AspectDeleteDropsItsEdges(t *testing.T) {
	hook, dao := newTestHook(t)
	ctx := context.Background()

	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   upstreamValue(dsB.String()),
	}))
	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeDelete,
		OldValue:   upstreamValue(dsB.String()),
	}))
	require.Empty(t, outgoingEdges(t, dao, dsA, "DownstreamOf"))
}

func TestIndexHook_KeyAspectDeleteRemovesNode(t *testing.T) {
	hook, dao := newTestHook(t)
	ctx := context.Background()

	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   upstreamValue(dsB.String()),
	}))
	addEdge(t, dao, dsC, dsA, "DownstreamOf")

	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.DatasetKeyAspect,
		Operation:  domain.ChangeDelete,
	}))

	// Both sides of the node are gone.
	require.Empty(t, outgoingEdges(t, dao, dsA, "DownstreamOf"))
	edges, err := dao.EdgesForNodes(ctx, []domain.Urn{dsA},
		[]EdgeTypeFilter{{RelationshipType: "DownstreamOf", Direction: domain.DirectionIncoming}})
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestIndexHook_SoftDeleteRemovesNode(t *testing.T) {
	hook, dao := newTestHook(t)
	ctx := context.Background()

	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   upstreamValue(dsB.String()),
	}))
	require.NoError(t, hook.Emit(ctx, domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.StatusAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   &domain.Status{Removed: true},
	}))
	require.Empty(t, outgoingEdges(t, dao, dsA, "DownstreamOf"))
}

func TestIndexHook_MalformedRelationshipsDoNotFailTheStream(t *testing.T) {
	hook, dao := newTestHook(t)

	require.NoError(t, hook.Emit(context.Background(), domain.ChangeEvent{
		Urn:        dsA,
		AspectName: domain.UpstreamLineageAspect,
		Operation:  domain.ChangeUpsert,
		NewValue:   upstreamValue("not-a-urn"),
	}))
	require.Empty(t, outgoingEdges(t, dao, dsA, "DownstreamOf"))
}
