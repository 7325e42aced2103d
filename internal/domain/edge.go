package domain

// Edge is a derived graph record. Edges are written by the graph index hook
// when a relationship-bearing aspect changes; they carry no independent
// versioning. The current set of edges for a (source, relationshipType) is
// the current truth.
type Edge struct {
	Source           Urn        `json:"source"`
	Destination      Urn        `json:"destination"`
	RelationshipType string     `json:"relationshipType"`
	Created          AuditStamp `json:"created"`
	Updated          AuditStamp `json:"updated"`
	// Via is the intermediate life-cycle owner that produced the
	// relationship. Used for path attribution, not traversal.
	Via *Urn `json:"via,omitempty"`
}

// RelatedEntity is one hit of a single-hop relationship query.
type RelatedEntity struct {
	RelationshipType string `json:"relationshipType"`
	Urn              Urn    `json:"urn"`
	Via              *Urn   `json:"via,omitempty"`
}

// RelatedEntitiesResult pages over single-hop relationship hits.
type RelatedEntitiesResult struct {
	Start    int             `json:"start"`
	Count    int             `json:"count"`
	Total    int             `json:"total"`
	Entities []RelatedEntity `json:"entities"`
}
