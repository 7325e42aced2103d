package registry

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

// MergeTemplate applies a PATCH payload to the current value of an aspect.
// Aspects without a registered template reject PATCH outright: undeclared
// array-merge semantics can silently corrupt state.
type MergeTemplate func(old domain.AspectValue, patch []byte) (domain.AspectValue, error)

var mergeTemplates = map[string]MergeTemplate{
	domain.DatasetPropertiesName: mergeDatasetProperties,
	domain.OwnershipAspect:       mergeOwnership,
}

// SupportsPatch reports whether the aspect has a registered merge template.
func SupportsPatch(aspectName string) bool {
	_, ok := mergeTemplates[aspectName]
	return ok
}

// ApplyPatch merges a PATCH payload over the current value. old may be nil,
// in which case the patch is applied to the aspect's zero value.
func ApplyPatch(aspectName string, old domain.AspectValue, patch []byte) (domain.AspectValue, error) {
	tmpl, ok := mergeTemplates[aspectName]
	if !ok {
		return nil, fmt.Errorf("%w: no merge template registered for aspect %q, PATCH is not allowed", pkgerrors.ErrUnsupported, aspectName)
	}
	return tmpl(old, patch)
}

// Fields present in the patch overwrite; customProperties are unioned with
// the patch winning on key collisions.
func mergeDatasetProperties(old domain.AspectValue, patch []byte) (domain.AspectValue, error) {
	merged := domain.DatasetProperties{}
	if old != nil {
		prev, ok := old.(*domain.DatasetProperties)
		if !ok {
			return nil, fmt.Errorf("%w: merge template for %q received %T", pkgerrors.ErrInvalidArgument, domain.DatasetPropertiesName, old)
		}
		merged = *prev
	}
	prevProps := merged.CustomProperties
	if err := json.Unmarshal(patch, &merged); err != nil {
		return nil, fmt.Errorf("%w: decode %q patch: %v", pkgerrors.ErrInvalidArgument, domain.DatasetPropertiesName, err)
	}
	if len(prevProps) > 0 {
		union := make(map[string]string, len(prevProps)+len(merged.CustomProperties))
		for k, v := range prevProps {
			union[k] = v
		}
		for k, v := range merged.CustomProperties {
			union[k] = v
		}
		merged.CustomProperties = union
	}
	return &merged, nil
}

// Owners are keyed by owner urn: patched entries replace matching owners,
// new entries append in patch order.
func mergeOwnership(old domain.AspectValue, patch []byte) (domain.AspectValue, error) {
	var incoming domain.Ownership
	if err := json.Unmarshal(patch, &incoming); err != nil {
		return nil, fmt.Errorf("%w: decode %q patch: %v", pkgerrors.ErrInvalidArgument, domain.OwnershipAspect, err)
	}
	merged := domain.Ownership{}
	if old != nil {
		prev, ok := old.(*domain.Ownership)
		if !ok {
			return nil, fmt.Errorf("%w: merge template for %q received %T", pkgerrors.ErrInvalidArgument, domain.OwnershipAspect, old)
		}
		merged.Owners = append(merged.Owners, prev.Owners...)
	}
	for _, o := range incoming.Owners {
		replaced := false
		for i := range merged.Owners {
			if merged.Owners[i].Owner == o.Owner {
				merged.Owners[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Owners = append(merged.Owners, o)
		}
	}
	return &merged, nil
}
