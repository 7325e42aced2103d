package registry

import (
	"fmt"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

// ExtractedRelationship is one concrete foreign-urn reference pulled from an
// aspect value, ready to become a graph edge.
type ExtractedRelationship struct {
	Type        string
	Destination domain.Urn
	Via         *domain.Urn
}

// ExtractRelationships walks the relationship-bearing fields of a typed
// aspect record. The set of cases mirrors the relationship declarations in
// the entity registry; an aspect type with no declared relationships yields
// nil. Malformed foreign urns fail the extraction rather than dropping the
// reference silently.
func ExtractRelationships(v domain.AspectValue) ([]ExtractedRelationship, error) {
	switch a := v.(type) {
	case *domain.UpstreamLineage:
		out := make([]ExtractedRelationship, 0, len(a.Upstreams))
		for _, up := range a.Upstreams {
			dest, err := domain.ParseUrn(up.Dataset)
			if err != nil {
				return nil, fmt.Errorf("upstreamLineage upstream dataset: %w", err)
			}
			rel := ExtractedRelationship{Type: domain.DownstreamOfRelationship, Destination: dest}
			if up.Via != "" {
				via, err := domain.ParseUrn(up.Via)
				if err != nil {
					return nil, fmt.Errorf("upstreamLineage via: %w", err)
				}
				rel.Via = &via
			}
			out = append(out, rel)
		}
		return out, nil

	case *domain.DataJobInputOutput:
		out := make([]ExtractedRelationship, 0, len(a.InputDatasets)+len(a.OutputDatasets))
		for _, in := range a.InputDatasets {
			dest, err := domain.ParseUrn(in)
			if err != nil {
				return nil, fmt.Errorf("dataJobInputOutput input dataset: %w", err)
			}
			out = append(out, ExtractedRelationship{Type: domain.ConsumesRelationship, Destination: dest})
		}
		for _, o := range a.OutputDatasets {
			dest, err := domain.ParseUrn(o)
			if err != nil {
				return nil, fmt.Errorf("dataJobInputOutput output dataset: %w", err)
			}
			out = append(out, ExtractedRelationship{Type: domain.ProducesRelationship, Destination: dest})
		}
		return out, nil

	case *domain.ChartInfo:
		out := make([]ExtractedRelationship, 0, len(a.Inputs))
		for _, in := range a.Inputs {
			dest, err := domain.ParseUrn(in)
			if err != nil {
				return nil, fmt.Errorf("chartInfo input: %w", err)
			}
			out = append(out, ExtractedRelationship{Type: domain.ConsumesRelationship, Destination: dest})
		}
		return out, nil

	case *domain.DashboardInfo:
		out := make([]ExtractedRelationship, 0, len(a.Charts))
		for _, c := range a.Charts {
			dest, err := domain.ParseUrn(c)
			if err != nil {
				return nil, fmt.Errorf("dashboardInfo chart: %w", err)
			}
			out = append(out, ExtractedRelationship{Type: domain.ContainsRelationship, Destination: dest})
		}
		return out, nil

	case *domain.Ownership:
		out := make([]ExtractedRelationship, 0, len(a.Owners))
		for _, o := range a.Owners {
			dest, err := domain.ParseUrn(o.Owner)
			if err != nil {
				return nil, fmt.Errorf("ownership owner: %w", err)
			}
			out = append(out, ExtractedRelationship{Type: domain.OwnedByRelationship, Destination: dest})
		}
		return out, nil

	case *domain.DataJobInfo:
		if a.Flow == "" {
			return nil, nil
		}
		dest, err := domain.ParseUrn(a.Flow)
		if err != nil {
			return nil, fmt.Errorf("dataJobInfo flow: %w", err)
		}
		return []ExtractedRelationship{{Type: domain.IsPartOfRelationship, Destination: dest}}, nil

	case *domain.DataPlatformInstance:
		if a.Platform == "" {
			return nil, nil
		}
		dest, err := domain.ParseUrn(a.Platform)
		if err != nil {
			return nil, fmt.Errorf("dataPlatformInstance platform: %w", err)
		}
		return []ExtractedRelationship{{Type: domain.InstanceOfRelationship, Destination: dest}}, nil
	}
	return nil, nil
}
