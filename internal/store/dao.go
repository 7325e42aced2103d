package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

// Row is the storage-level shape of one aspect version, shared by every
// AspectDao implementation. Version 0 holds the current value; positive
// versions hold history in write order, the highest being the most recent
// retired value.
type Row struct {
	Urn        string
	Aspect     string
	Version    int64
	Payload    json.RawMessage
	Metadata   *domain.SystemMetadata
	CreatedOn  time.Time
	CreatedBy  string
	CreatedFor string
}

func (r *Row) clone() *Row {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Payload = append(json.RawMessage(nil), r.Payload...)
	cp.Metadata = r.Metadata.Clone()
	return &cp
}

// AspectDao is the versioned aspect storage contract. Write paths run
// inside RunInTransaction; a commit race between concurrent writers
// surfaces as pkgerrors.ErrConflict, which the retry runner owns.
// Non-transactional reads may observe values concurrently being superseded.
type AspectDao interface {
	RunInTransaction(ctx context.Context, fn func(tx AspectTx) error) error
	GetLatest(ctx context.Context, urn, aspectName string) (*Row, error)
	GetVersion(ctx context.Context, urn, aspectName string, version int64) (*Row, error)
	MaxVersion(ctx context.Context, urn, aspectName string) (int64, bool, error)
	// ListLatest pages version-0 rows of one aspect across an entity type,
	// ordered by urn. Returns the page and the total row count.
	ListLatest(ctx context.Context, entityType, aspectName string, start, count int) ([]Row, int, error)
	ListUrns(ctx context.Context, entityType string, start, count int) ([]string, int, error)
	// LatestByRun returns every version-0 row stamped with the run id.
	LatestByRun(ctx context.Context, runID string) ([]Row, error)
	// LatestForUrn returns every version-0 row of one urn.
	LatestForUrn(ctx context.Context, urn string) ([]Row, error)
	// NextID allocates a synthetic numeric id, serialized per namespace and
	// independent across namespaces.
	NextID(ctx context.Context, namespace string) (int64, error)
}

// AspectTx is the transactional view handed to RunInTransaction closures.
type AspectTx interface {
	GetLatest(urn, aspectName string) (*Row, error)
	GetVersion(urn, aspectName string, version int64) (*Row, error)
	MaxVersion(urn, aspectName string) (int64, bool, error)
	// Insert fails with pkgerrors.ErrConflict when the (urn, aspect,
	// version) key already exists.
	Insert(row Row) error
	// UpdateLatest replaces the version-0 row in place.
	UpdateLatest(row Row) error
	Delete(urn, aspectName string, version int64) error
	// DeleteAspect removes every version of one aspect.
	DeleteAspect(urn, aspectName string) error
	// DeleteUrn purges every aspect of the urn.
	DeleteUrn(urn string) error
	LatestForUrn(urn string) ([]Row, error)
	// EarliestAspect names the aspect whose first version was written
	// before any other aspect of the urn.
	EarliestAspect(urn string) (string, bool, error)
}

// urnEntityType extracts the entity type from a canonical urn string
// without a full parse. List queries use it as a key prefix.
func urnEntityType(urn string) string {
	const prefix = "urn:li:"
	if !strings.HasPrefix(urn, prefix) {
		return ""
	}
	rest := urn[len(prefix):]
	if sep := strings.IndexByte(rest, ':'); sep > 0 {
		return rest[:sep]
	}
	return ""
}

func urnPrefixFor(entityType string) string {
	return "urn:li:" + entityType + ":"
}
