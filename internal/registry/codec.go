package registry

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/metagraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

// The codec table is the static replacement for runtime schema reflection:
// every registered aspect name maps to a factory for its concrete record
// type, resolved once at startup. Unregistered names fall back to
// GenericAspect so forward-compatible payloads still round-trip.
var aspectFactories = map[string]func() domain.AspectValue{
	domain.DatasetKeyAspect:       func() domain.AspectValue { return &domain.DatasetKey{} },
	domain.DataJobKeyAspect:       func() domain.AspectValue { return &domain.DataJobKey{} },
	domain.DataFlowKeyAspect:      func() domain.AspectValue { return &domain.DataFlowKey{} },
	domain.ChartKeyAspect:         func() domain.AspectValue { return &domain.ChartKey{} },
	domain.DashboardKeyAspect:     func() domain.AspectValue { return &domain.DashboardKey{} },
	domain.CorpUserKeyAspect:      func() domain.AspectValue { return &domain.CorpUserKey{} },
	domain.DataPlatformKeyAspect:  func() domain.AspectValue { return &domain.DataPlatformKey{} },
	domain.DatasetPropertiesName:  func() domain.AspectValue { return &domain.DatasetProperties{} },
	domain.OwnershipAspect:        func() domain.AspectValue { return &domain.Ownership{} },
	domain.UpstreamLineageAspect:  func() domain.AspectValue { return &domain.UpstreamLineage{} },
	domain.BrowsePathsAspect:      func() domain.AspectValue { return &domain.BrowsePaths{} },
	domain.BrowsePathsV2Aspect:    func() domain.AspectValue { return &domain.BrowsePathsV2{} },
	domain.PlatformInstanceAspect: func() domain.AspectValue { return &domain.DataPlatformInstance{} },
	domain.StatusAspect:           func() domain.AspectValue { return &domain.Status{} },
	domain.DatasetProfileAspect:   func() domain.AspectValue { return &domain.DatasetProfile{} },
	domain.DataJobInfoAspect:      func() domain.AspectValue { return &domain.DataJobInfo{} },
	domain.DataJobInputOutputName: func() domain.AspectValue { return &domain.DataJobInputOutput{} },
	domain.DataFlowInfoAspect:     func() domain.AspectValue { return &domain.DataFlowInfo{} },
	domain.ChartInfoAspect:        func() domain.AspectValue { return &domain.ChartInfo{} },
	domain.DashboardInfoAspect:    func() domain.AspectValue { return &domain.DashboardInfo{} },
	domain.CorpUserInfoAspect:     func() domain.AspectValue { return &domain.CorpUserInfo{} },
	domain.DataPlatformInfoAspect: func() domain.AspectValue { return &domain.DataPlatformInfo{} },
}

// DecodeAspect materializes the typed record for an aspect payload.
func DecodeAspect(aspectName string, data []byte) (domain.AspectValue, error) {
	factory, ok := aspectFactories[aspectName]
	if !ok {
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return domain.GenericAspect{Name: aspectName, Value: raw}, nil
	}
	v := factory()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: decode aspect %q: %v", pkgerrors.ErrInvalidArgument, aspectName, err)
	}
	return v, nil
}

// EncodeAspect serializes a typed record back to its storage payload.
func EncodeAspect(v domain.AspectValue) ([]byte, error) {
	if g, ok := v.(domain.GenericAspect); ok {
		out := make([]byte, len(g.Value))
		copy(out, g.Value)
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode aspect %q: %w", v.AspectName(), err)
	}
	return data, nil
}

// IsRegisteredAspect reports whether a typed record exists for the name.
func IsRegisteredAspect(aspectName string) bool {
	_, ok := aspectFactories[aspectName]
	return ok
}

func decodeKeyFields(keyAspectName string, fields map[string]string) (domain.AspectValue, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode key fields for %q: %w", keyAspectName, err)
	}
	return DecodeAspect(keyAspectName, data)
}
