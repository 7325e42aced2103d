package domain

// LineageDirection selects which side of the derived lineage edge schema a
// traversal follows.
type LineageDirection string

const (
	LineageUpstream   LineageDirection = "UPSTREAM"
	LineageDownstream LineageDirection = "DOWNSTREAM"
)

// LineageRelationship is one entity discovered by a lineage traversal.
// Path is the chain of urns taken from the start urn to this entity,
// exclusive of both endpoints' duplicates: it lists the intermediate hops
// (the parent chain), so a directly connected entity has an empty path.
type LineageRelationship struct {
	Type   string `json:"type"`
	Entity Urn    `json:"entity"`
	Path   []Urn  `json:"path"`
	Degree int    `json:"degree"`
}

// EntityLineageResult is one page of a multi-hop lineage answer. Total is
// the size of the full traversal result, independent of the requested page.
type EntityLineageResult struct {
	Start         int                   `json:"start"`
	Count         int                   `json:"count"`
	Total         int                   `json:"total"`
	Relationships []LineageRelationship `json:"relationships"`
}
