package registry

import (
	"sort"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

// EdgeInfo is one legal lineage hop for an entity type: a relationship type
// plus the storage direction in which it must be traversed.
type EdgeInfo struct {
	Type      string
	Direction domain.RelationshipDirection
}

// LineageRegistry precomputes, per entity type, the set of edge types that
// constitute upstream vs downstream lineage. It restricts which stored
// edges are legal hops for a node, so traversal never crosses structurally
// unrelated relationship types that happen to share a name.
//
// Assignment rule: a declaration "this entity is upstream of the target"
// contributes {type, OUTGOING} to the declaring type's upstream set and
// {type, INCOMING} to each destination type's downstream set; a
// "downstream of the target" declaration contributes the mirrored
// assignment. Duplicates collapse.
type LineageRegistry struct {
	byEntity map[string]map[domain.LineageDirection][]EdgeInfo
}

func NewLineageRegistry(reg *Registry) *LineageRegistry {
	lr := &LineageRegistry{byEntity: make(map[string]map[domain.LineageDirection][]EdgeInfo)}
	seen := make(map[string]struct{})

	add := func(entityType string, dir domain.LineageDirection, info EdgeInfo) {
		key := entityType + "|" + string(dir) + "|" + info.Type + "|" + string(info.Direction)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		byDir, ok := lr.byEntity[entityType]
		if !ok {
			byDir = make(map[domain.LineageDirection][]EdgeInfo, 2)
			lr.byEntity[entityType] = byDir
		}
		byDir[dir] = append(byDir[dir], info)
	}

	for _, entity := range reg.Entities() {
		for _, aspect := range entity.Aspects {
			for _, rel := range aspect.Relationships {
				switch rel.Lineage {
				case LineageUpstreamOfTarget:
					add(entity.Name, domain.LineageUpstream, EdgeInfo{Type: rel.Name, Direction: domain.DirectionOutgoing})
					for _, dest := range rel.DestinationTypes {
						add(dest, domain.LineageDownstream, EdgeInfo{Type: rel.Name, Direction: domain.DirectionIncoming})
					}
				case LineageDownstreamOfTarget:
					add(entity.Name, domain.LineageDownstream, EdgeInfo{Type: rel.Name, Direction: domain.DirectionOutgoing})
					for _, dest := range rel.DestinationTypes {
						add(dest, domain.LineageUpstream, EdgeInfo{Type: rel.Name, Direction: domain.DirectionIncoming})
					}
				}
			}
		}
	}

	// Deterministic order keeps traversal results stable across runs.
	for _, byDir := range lr.byEntity {
		for dir := range byDir {
			infos := byDir[dir]
			sort.Slice(infos, func(i, j int) bool {
				if infos[i].Type != infos[j].Type {
					return infos[i].Type < infos[j].Type
				}
				return infos[i].Direction < infos[j].Direction
			})
		}
	}
	return lr
}

// EdgesFor returns the legal lineage hops for an entity type in the given
// traversal direction. The returned slice must not be mutated.
func (l *LineageRegistry) EdgesFor(entityType string, dir domain.LineageDirection) []EdgeInfo {
	byDir, ok := l.byEntity[entityType]
	if !ok {
		return nil
	}
	return byDir[dir]
}
