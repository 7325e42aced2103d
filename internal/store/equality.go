package store

import (
	"bytes"

	"github.com/yungbote/metagraph-backend/internal/domain"
	"github.com/yungbote/metagraph-backend/internal/registry"
)

// EqualityTester decides whether a proposed value is a no-op write for its
// aspect. Pluggable per aspect name; the default compares canonical JSON.
type EqualityTester func(old, new domain.AspectValue) bool

// JSONEquality is the default tester: structural equality via the encoded
// payload (encoding/json emits struct fields and sorted map keys
// deterministically).
func JSONEquality(old, new domain.AspectValue) bool {
	if old == nil || new == nil {
		return old == nil && new == nil
	}
	a, err := registry.EncodeAspect(old)
	if err != nil {
		return false
	}
	b, err := registry.EncodeAspect(new)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// AlwaysUnequal forces every write to grow history, e.g. for aspects whose
// every observation matters.
func AlwaysUnequal(old, new domain.AspectValue) bool { return false }
