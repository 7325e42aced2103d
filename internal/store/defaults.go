package store

import (
	"context"
	"strings"

	"github.com/yungbote/metagraph-backend/internal/domain"
	"github.com/yungbote/metagraph-backend/internal/registry"
)

// rowGetter abstracts "read the latest row" over a live transaction or the
// bare DAO, so default generation works in both ingest and read paths.
type rowGetter interface {
	getLatest(urn, aspectName string) (*Row, error)
}

type txGetter struct{ tx AspectTx }

func (g txGetter) getLatest(urn, aspectName string) (*Row, error) {
	return g.tx.GetLatest(urn, aspectName)
}

type daoGetter struct {
	ctx context.Context
	dao AspectDao
}

func (g daoGetter) getLatest(urn, aspectName string) (*Row, error) {
	return g.dao.GetLatest(g.ctx, urn, aspectName)
}

// GenerateDefaultAspectsIfMissing computes the default aspects a write to
// urn should bring along: the key aspect first, then browse paths and the
// platform instance, each skipped when absent from the entity schema,
// already persisted, or named in the in-flight set.
func (s *EntityAspectStore) GenerateDefaultAspectsIfMissing(ctx context.Context, urn domain.Urn, ingesting map[string]struct{}) ([]AspectEnvelope, error) {
	return s.generateDefaults(daoGetter{ctx: ctx, dao: s.dao}, urn, ingesting)
}

func (s *EntityAspectStore) generateDefaults(g rowGetter, urn domain.Urn, ingesting map[string]struct{}) ([]AspectEnvelope, error) {
	spec, ok := s.registry.Entity(urn.EntityType())
	if !ok {
		return nil, nil
	}
	keyName, err := s.registry.KeyAspectName(urn.EntityType())
	if err != nil {
		return nil, err
	}

	// Defaults only accompany entity creation. A pre-existing key aspect
	// (other than one being written right now) means the urn is not new.
	if _, inflight := ingesting[keyName]; !inflight {
		keyRow, err := g.getLatest(urn.String(), keyName)
		if err != nil {
			return nil, err
		}
		if keyRow != nil {
			return nil, nil
		}
	}

	var out []AspectEnvelope
	emit := func(aspectName string, build func() (domain.AspectValue, error)) error {
		if !spec.HasAspect(aspectName) && aspectName != keyName {
			return nil
		}
		if _, inflight := ingesting[aspectName]; inflight {
			return nil
		}
		row, err := g.getLatest(urn.String(), aspectName)
		if err != nil {
			return err
		}
		if row != nil {
			return nil
		}
		value, err := build()
		if err != nil {
			return err
		}
		if value == nil {
			return nil
		}
		out = append(out, AspectEnvelope{Urn: urn, AspectName: aspectName, Value: value})
		return nil
	}

	if err := emit(keyName, func() (domain.AspectValue, error) {
		return s.registry.KeyAspectForUrn(urn)
	}); err != nil {
		return nil, err
	}

	segments := s.browseSegments(g, urn)
	if err := emit(domain.BrowsePathsAspect, func() (domain.AspectValue, error) {
		if len(segments) == 0 {
			return nil, nil
		}
		ids := make([]string, len(segments))
		for i, seg := range segments {
			ids[i] = strings.ToLower(seg.ID)
		}
		return &domain.BrowsePaths{Paths: []string{"/" + strings.Join(ids, "/")}}, nil
	}); err != nil {
		return nil, err
	}
	if err := emit(domain.BrowsePathsV2Aspect, func() (domain.AspectValue, error) {
		if len(segments) == 0 {
			return nil, nil
		}
		return &domain.BrowsePathsV2{Path: segments}, nil
	}); err != nil {
		return nil, err
	}

	if err := emit(domain.PlatformInstanceAspect, func() (domain.AspectValue, error) {
		platform := s.platformUrnFor(urn)
		if platform == "" {
			return nil, nil
		}
		return &domain.DataPlatformInstance{Platform: platform}, nil
	}); err != nil {
		return nil, err
	}

	return out, nil
}

// browseSegments computes the default browse path of urn from its key
// parts. Unknown entity types and malformed keys yield no path rather than
// failing the write.
func (s *EntityAspectStore) browseSegments(g rowGetter, urn domain.Urn) []domain.BrowsePathEntry {
	parts := urn.Parts()
	switch urn.EntityType() {
	case domain.DatasetEntity:
		if len(parts) != 3 {
			return nil
		}
		platformUrn, name, origin := parts[0], parts[1], parts[2]
		platformName := platformShortName(platformUrn)
		if platformName == "" {
			return nil
		}
		segments := []domain.BrowsePathEntry{
			{ID: origin},
			{ID: platformName, Urn: platformUrn},
		}
		for _, piece := range strings.Split(name, s.platformDelimiter(g, platformUrn)) {
			if piece == "" {
				continue
			}
			segments = append(segments, domain.BrowsePathEntry{ID: piece})
		}
		return segments
	case domain.DataJobEntity:
		if len(parts) != 2 {
			return nil
		}
		flow, err := domain.ParseUrn(parts[0])
		if err != nil || len(flow.Parts()) != 3 {
			return nil
		}
		return []domain.BrowsePathEntry{
			{ID: flow.Parts()[0]},
			{ID: flow.Parts()[1], Urn: flow.String()},
		}
	case domain.DataFlowEntity:
		if len(parts) != 3 {
			return nil
		}
		return []domain.BrowsePathEntry{
			{ID: parts[0]},
			{ID: parts[2]},
		}
	default:
		return nil
	}
}

// platformUrnFor derives the platform behind urn when the key encodes one.
func (s *EntityAspectStore) platformUrnFor(urn domain.Urn) string {
	parts := urn.Parts()
	switch urn.EntityType() {
	case domain.DatasetEntity:
		if len(parts) == 3 && strings.HasPrefix(parts[0], urnPrefixFor(domain.DataPlatformEntity)) {
			return parts[0]
		}
	case domain.DataJobEntity:
		if len(parts) != 2 {
			return ""
		}
		flow, err := domain.ParseUrn(parts[0])
		if err != nil || len(flow.Parts()) != 3 {
			return ""
		}
		return urnPrefixFor(domain.DataPlatformEntity) + flow.Parts()[0]
	}
	return ""
}

// platformDelimiter reads datasetNameDelimiter from the platform's
// dataPlatformInfo aspect, falling back to "." on any lookup failure.
func (s *EntityAspectStore) platformDelimiter(g rowGetter, platformUrn string) string {
	row, err := g.getLatest(platformUrn, domain.DataPlatformInfoAspect)
	if err != nil || row == nil {
		return "."
	}
	value, err := registry.DecodeAspect(row.Aspect, row.Payload)
	if err != nil {
		return "."
	}
	info, ok := value.(*domain.DataPlatformInfo)
	if !ok || info.DatasetNameDelimiter == "" {
		return "."
	}
	return info.DatasetNameDelimiter
}

func platformShortName(platformUrn string) string {
	prefix := urnPrefixFor(domain.DataPlatformEntity)
	if !strings.HasPrefix(platformUrn, prefix) {
		return ""
	}
	return platformUrn[len(prefix):]
}
