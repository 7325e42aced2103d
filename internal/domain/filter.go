package domain

// RelationshipDirection orients a stored edge relative to the queried node.
type RelationshipDirection string

const (
	DirectionOutgoing   RelationshipDirection = "OUTGOING"
	DirectionIncoming   RelationshipDirection = "INCOMING"
	DirectionUndirected RelationshipDirection = "UNDIRECTED"
)

// Criterion is a single equality constraint. Values, when set, is an OR
// within the field; Value is shorthand for a single-element Values.
type Criterion struct {
	Field  string   `json:"field"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

func (c Criterion) Matches(got string) bool {
	if len(c.Values) > 0 {
		for _, v := range c.Values {
			if v == got {
				return true
			}
		}
		return false
	}
	return c.Value == got
}

// ConjunctiveCriterion ANDs criteria across fields.
type ConjunctiveCriterion struct {
	And []Criterion `json:"and"`
}

// Filter is a disjunctive-normal-form filter: OR of ANDs of equality
// criteria.
type Filter struct {
	Or []ConjunctiveCriterion `json:"or"`
}

// NewFilter builds a single-clause filter from field=value pairs.
func NewFilter(criteria ...Criterion) Filter {
	if len(criteria) == 0 {
		return Filter{}
	}
	return Filter{Or: []ConjunctiveCriterion{{And: criteria}}}
}

func (f Filter) IsEmpty() bool {
	for _, c := range f.Or {
		if len(c.And) > 0 {
			return false
		}
	}
	return true
}

// RelationshipFilter scopes a single-hop query to relationship types and a
// traversal direction.
type RelationshipFilter struct {
	Direction RelationshipDirection `json:"direction"`
}
