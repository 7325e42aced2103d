package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
)

// MemoryAspectDao is the embedded AspectDao: a mutex-guarded map of
// (urn, aspect, version) rows. Transactions are serialized under the write
// lock and rolled back from a snapshot on failure, so closures observe
// atomic, isolated state. Unit tests and single-process deployments use it;
// the gorm DAO is the clustered production path.
type MemoryAspectDao struct {
	mu   sync.RWMutex
	rows map[string]map[string]map[int64]*Row // urn -> aspect -> version

	idMu       sync.Mutex
	namespaces map[string]*namespaceCounter
}

type namespaceCounter struct {
	mu      sync.Mutex
	counter int64
}

func NewMemoryAspectDao() *MemoryAspectDao {
	return &MemoryAspectDao{
		rows:       make(map[string]map[string]map[int64]*Row),
		namespaces: make(map[string]*namespaceCounter),
	}
}

func (d *MemoryAspectDao) RunInTransaction(ctx context.Context, fn func(tx AspectTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := d.snapshotLocked()
	tx := &memoryTx{dao: d}
	if err := fn(tx); err != nil {
		d.rows = snapshot
		return err
	}
	return nil
}

func (d *MemoryAspectDao) snapshotLocked() map[string]map[string]map[int64]*Row {
	out := make(map[string]map[string]map[int64]*Row, len(d.rows))
	for urn, aspects := range d.rows {
		outAspects := make(map[string]map[int64]*Row, len(aspects))
		for aspect, versions := range aspects {
			outVersions := make(map[int64]*Row, len(versions))
			for v, row := range versions {
				outVersions[v] = row.clone()
			}
			outAspects[aspect] = outVersions
		}
		out[urn] = outAspects
	}
	return out
}

func (d *MemoryAspectDao) getLocked(urn, aspect string, version int64) *Row {
	aspects, ok := d.rows[urn]
	if !ok {
		return nil
	}
	versions, ok := aspects[aspect]
	if !ok {
		return nil
	}
	return versions[version]
}

func (d *MemoryAspectDao) GetLatest(ctx context.Context, urn, aspectName string) (*Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.getLocked(urn, aspectName, 0).clone(), nil
}

func (d *MemoryAspectDao) GetVersion(ctx context.Context, urn, aspectName string, version int64) (*Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.getLocked(urn, aspectName, version).clone(), nil
}

func (d *MemoryAspectDao) MaxVersion(ctx context.Context, urn, aspectName string) (int64, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxVersionLocked(urn, aspectName)
}

func (d *MemoryAspectDao) maxVersionLocked(urn, aspectName string) (int64, bool, error) {
	aspects, ok := d.rows[urn]
	if !ok {
		return 0, false, nil
	}
	versions, ok := aspects[aspectName]
	if !ok || len(versions) == 0 {
		return 0, false, nil
	}
	var max int64
	for v := range versions {
		if v > max {
			max = v
		}
	}
	return max, true, nil
}

func (d *MemoryAspectDao) ListLatest(ctx context.Context, entityType, aspectName string, start, count int) ([]Row, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []Row
	for urn, aspects := range d.rows {
		if urnEntityType(urn) != entityType {
			continue
		}
		if versions, ok := aspects[aspectName]; ok {
			if row, ok := versions[0]; ok {
				matched = append(matched, *row.clone())
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Urn < matched[j].Urn })
	return pageRows(matched, start, count), len(matched), nil
}

func (d *MemoryAspectDao) ListUrns(ctx context.Context, entityType string, start, count int) ([]string, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var urns []string
	for urn := range d.rows {
		if urnEntityType(urn) == entityType && len(d.rows[urn]) > 0 {
			urns = append(urns, urn)
		}
	}
	sort.Strings(urns)
	total := len(urns)
	if start >= total {
		return nil, total, nil
	}
	end := start + count
	if end > total {
		end = total
	}
	return urns[start:end], total, nil
}

func (d *MemoryAspectDao) LatestByRun(ctx context.Context, runID string) ([]Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Row
	for _, aspects := range d.rows {
		for _, versions := range aspects {
			row, ok := versions[0]
			if !ok || row.Metadata == nil || row.Metadata.RunID != runID {
				continue
			}
			out = append(out, *row.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Urn != out[j].Urn {
			return out[i].Urn < out[j].Urn
		}
		return out[i].Aspect < out[j].Aspect
	})
	return out, nil
}

func (d *MemoryAspectDao) LatestForUrn(ctx context.Context, urn string) ([]Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return latestForUrnLocked(d.rows, urn), nil
}

func latestForUrnLocked(rows map[string]map[string]map[int64]*Row, urn string) []Row {
	aspects, ok := rows[urn]
	if !ok {
		return nil
	}
	var out []Row
	for _, versions := range aspects {
		if row, ok := versions[0]; ok {
			out = append(out, *row.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Aspect < out[j].Aspect })
	return out
}

func (d *MemoryAspectDao) NextID(ctx context.Context, namespace string) (int64, error) {
	d.idMu.Lock()
	nc, ok := d.namespaces[namespace]
	if !ok {
		nc = &namespaceCounter{}
		d.namespaces[namespace] = nc
	}
	d.idMu.Unlock()

	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.counter++
	return nc.counter, nil
}

func pageRows(rows []Row, start, count int) []Row {
	if start >= len(rows) {
		return nil
	}
	end := start + count
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// memoryTx mutates the dao maps directly; RunInTransaction holds the write
// lock for the whole closure and restores a snapshot on error.
type memoryTx struct {
	dao *MemoryAspectDao
}

func (t *memoryTx) GetLatest(urn, aspectName string) (*Row, error) {
	return t.dao.getLocked(urn, aspectName, 0).clone(), nil
}

func (t *memoryTx) GetVersion(urn, aspectName string, version int64) (*Row, error) {
	return t.dao.getLocked(urn, aspectName, version).clone(), nil
}

func (t *memoryTx) MaxVersion(urn, aspectName string) (int64, bool, error) {
	return t.dao.maxVersionLocked(urn, aspectName)
}

func (t *memoryTx) Insert(row Row) error {
	aspects, ok := t.dao.rows[row.Urn]
	if !ok {
		aspects = make(map[string]map[int64]*Row)
		t.dao.rows[row.Urn] = aspects
	}
	versions, ok := aspects[row.Aspect]
	if !ok {
		versions = make(map[int64]*Row)
		aspects[row.Aspect] = versions
	}
	if _, exists := versions[row.Version]; exists {
		return fmt.Errorf("%w: row (%s, %s, %d) already exists", pkgerrors.ErrConflict, row.Urn, row.Aspect, row.Version)
	}
	versions[row.Version] = row.clone()
	return nil
}

func (t *memoryTx) UpdateLatest(row Row) error {
	row.Version = 0
	versions, ok := t.dao.rows[row.Urn][row.Aspect]
	if !ok || versions[0] == nil {
		return fmt.Errorf("%w: no version-0 row for (%s, %s)", pkgerrors.ErrNotFound, row.Urn, row.Aspect)
	}
	versions[0] = row.clone()
	return nil
}

func (t *memoryTx) Delete(urn, aspectName string, version int64) error {
	if versions, ok := t.dao.rows[urn][aspectName]; ok {
		delete(versions, version)
		if len(versions) == 0 {
			delete(t.dao.rows[urn], aspectName)
			if len(t.dao.rows[urn]) == 0 {
				delete(t.dao.rows, urn)
			}
		}
	}
	return nil
}

func (t *memoryTx) DeleteAspect(urn, aspectName string) error {
	if aspects, ok := t.dao.rows[urn]; ok {
		delete(aspects, aspectName)
		if len(aspects) == 0 {
			delete(t.dao.rows, urn)
		}
	}
	return nil
}

func (t *memoryTx) DeleteUrn(urn string) error {
	delete(t.dao.rows, urn)
	return nil
}

func (t *memoryTx) LatestForUrn(urn string) ([]Row, error) {
	return latestForUrnLocked(t.dao.rows, urn), nil
}

func (t *memoryTx) EarliestAspect(urn string) (string, bool, error) {
	aspects, ok := t.dao.rows[urn]
	if !ok {
		return "", false, nil
	}
	var earliestName string
	var earliestAt time.Time
	found := false
	// An aspect's creation time is the created_on of its oldest row.
	for name, versions := range aspects {
		for _, row := range versions {
			if !found || row.CreatedOn.Before(earliestAt) ||
				(row.CreatedOn.Equal(earliestAt) && name < earliestName) {
				found = true
				earliestAt = row.CreatedOn
				earliestName = name
			}
		}
	}
	return earliestName, found, nil
}
