package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/metagraph-backend/internal/domain"
	"github.com/yungbote/metagraph-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
)

// GormAspectDao persists aspect rows in the entity_aspect table. Optimistic
// concurrency rides on the composite primary key: two writers bumping the
// same aspect race to insert the same history version, and the loser's
// unique violation is surfaced as ErrConflict for the retry runner.
type GormAspectDao struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGormAspectDao(db *gorm.DB, baseLog *logger.Logger) *GormAspectDao {
	return &GormAspectDao{
		db:  db,
		log: baseLog.With("dao", "GormAspectDao"),
	}
}

func (d *GormAspectDao) RunInTransaction(ctx context.Context, fn func(tx AspectTx) error) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{dbc: dbctx.Context{Ctx: ctx, Tx: tx}})
	})
	return classifyCommitError(err)
}

func (d *GormAspectDao) GetLatest(ctx context.Context, urn, aspectName string) (*Row, error) {
	return getRow(dbctx.New(ctx).Resolve(d.db), urn, aspectName, 0)
}

func (d *GormAspectDao) GetVersion(ctx context.Context, urn, aspectName string, version int64) (*Row, error) {
	return getRow(dbctx.New(ctx).Resolve(d.db), urn, aspectName, version)
}

func (d *GormAspectDao) MaxVersion(ctx context.Context, urn, aspectName string) (int64, bool, error) {
	return maxVersion(dbctx.New(ctx).Resolve(d.db), urn, aspectName)
}

func (d *GormAspectDao) ListLatest(ctx context.Context, entityType, aspectName string, start, count int) ([]Row, int, error) {
	db := dbctx.New(ctx).Resolve(d.db)
	cond := db.Model(&domain.EntityAspectRow{}).
		Where("version = 0 AND aspect = ? AND urn LIKE ?", aspectName, urnPrefixFor(entityType)+"%")

	var total int64
	if err := cond.Count(&total).Error; err != nil {
		return nil, 0, classifyGormError(err)
	}
	var models []domain.EntityAspectRow
	if err := cond.Order("urn ASC").Offset(start).Limit(count).Find(&models).Error; err != nil {
		return nil, 0, classifyGormError(err)
	}
	rows, err := fromModels(models)
	return rows, int(total), err
}

func (d *GormAspectDao) ListUrns(ctx context.Context, entityType string, start, count int) ([]string, int, error) {
	db := dbctx.New(ctx).Resolve(d.db)
	cond := db.Model(&domain.EntityAspectRow{}).
		Distinct("urn").
		Where("urn LIKE ?", urnPrefixFor(entityType)+"%")

	var total int64
	if err := cond.Count(&total).Error; err != nil {
		return nil, 0, classifyGormError(err)
	}
	var urns []string
	if err := cond.Order("urn ASC").Offset(start).Limit(count).Pluck("urn", &urns).Error; err != nil {
		return nil, 0, classifyGormError(err)
	}
	return urns, int(total), nil
}

func (d *GormAspectDao) LatestByRun(ctx context.Context, runID string) ([]Row, error) {
	db := dbctx.New(ctx).Resolve(d.db)
	var models []domain.EntityAspectRow
	if err := db.
		Where("version = 0 AND system_metadata->>'runId' = ?", runID).
		Order("urn ASC, aspect ASC").
		Find(&models).Error; err != nil {
		return nil, classifyGormError(err)
	}
	return fromModels(models)
}

func (d *GormAspectDao) LatestForUrn(ctx context.Context, urn string) ([]Row, error) {
	db := dbctx.New(ctx).Resolve(d.db)
	var models []domain.EntityAspectRow
	if err := db.
		Where("version = 0 AND urn = ?", urn).
		Order("aspect ASC").
		Find(&models).Error; err != nil {
		return nil, classifyGormError(err)
	}
	return fromModels(models)
}

func (d *GormAspectDao) NextID(ctx context.Context, namespace string) (int64, error) {
	var next int64
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row domain.NumericIDRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("namespace = ?", namespace).
			First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = domain.NumericIDRow{Namespace: namespace, Counter: 1}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			row.Counter++
			if err := tx.Model(&domain.NumericIDRow{}).
				Where("namespace = ?", namespace).
				Update("counter", row.Counter).Error; err != nil {
				return err
			}
		}
		next = row.Counter
		return nil
	})
	if err != nil {
		return 0, classifyGormError(err)
	}
	return next, nil
}

type gormTx struct {
	dbc dbctx.Context
}

func (t *gormTx) db() *gorm.DB { return t.dbc.Resolve(nil) }

func (t *gormTx) GetLatest(urn, aspectName string) (*Row, error) {
	return getRow(t.db(), urn, aspectName, 0)
}

func (t *gormTx) GetVersion(urn, aspectName string, version int64) (*Row, error) {
	return getRow(t.db(), urn, aspectName, version)
}

func (t *gormTx) MaxVersion(urn, aspectName string) (int64, bool, error) {
	return maxVersion(t.db(), urn, aspectName)
}

func (t *gormTx) Insert(row Row) error {
	model, err := toModel(row)
	if err != nil {
		return err
	}
	return classifyGormError(t.db().Create(&model).Error)
}

func (t *gormTx) UpdateLatest(row Row) error {
	row.Version = 0
	model, err := toModel(row)
	if err != nil {
		return err
	}
	res := t.db().Model(&domain.EntityAspectRow{}).
		Where("urn = ? AND aspect = ? AND version = 0", row.Urn, row.Aspect).
		Updates(map[string]interface{}{
			"payload":         model.Payload,
			"system_metadata": model.SystemMetadata,
			"created_on":      model.CreatedOn,
			"created_by":      model.CreatedBy,
			"created_for":     model.CreatedFor,
		})
	if res.Error != nil {
		return classifyGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no version-0 row for (%s, %s)", pkgerrors.ErrNotFound, row.Urn, row.Aspect)
	}
	return nil
}

func (t *gormTx) Delete(urn, aspectName string, version int64) error {
	return classifyGormError(t.db().
		Where("urn = ? AND aspect = ? AND version = ?", urn, aspectName, version).
		Delete(&domain.EntityAspectRow{}).Error)
}

func (t *gormTx) DeleteAspect(urn, aspectName string) error {
	return classifyGormError(t.db().
		Where("urn = ? AND aspect = ?", urn, aspectName).
		Delete(&domain.EntityAspectRow{}).Error)
}

func (t *gormTx) DeleteUrn(urn string) error {
	return classifyGormError(t.db().
		Where("urn = ?", urn).
		Delete(&domain.EntityAspectRow{}).Error)
}

func (t *gormTx) LatestForUrn(urn string) ([]Row, error) {
	var models []domain.EntityAspectRow
	if err := t.db().
		Where("version = 0 AND urn = ?", urn).
		Order("aspect ASC").
		Find(&models).Error; err != nil {
		return nil, classifyGormError(err)
	}
	return fromModels(models)
}

func (t *gormTx) EarliestAspect(urn string) (string, bool, error) {
	var model domain.EntityAspectRow
	err := t.db().
		Where("urn = ?", urn).
		Order("created_on ASC, aspect ASC").
		Limit(1).
		Find(&model).Error
	if err != nil {
		return "", false, classifyGormError(err)
	}
	if model.Aspect == "" {
		return "", false, nil
	}
	return model.Aspect, true, nil
}

func getRow(db *gorm.DB, urn, aspectName string, version int64) (*Row, error) {
	var model domain.EntityAspectRow
	err := db.
		Where("urn = ? AND aspect = ? AND version = ?", urn, aspectName, version).
		Limit(1).
		Find(&model).Error
	if err != nil {
		return nil, classifyGormError(err)
	}
	if model.Urn == "" {
		return nil, nil
	}
	return fromModel(model)
}

func maxVersion(db *gorm.DB, urn, aspectName string) (int64, bool, error) {
	var max *int64
	err := db.Model(&domain.EntityAspectRow{}).
		Where("urn = ? AND aspect = ?", urn, aspectName).
		Select("MAX(version)").
		Scan(&max).Error
	if err != nil {
		return 0, false, classifyGormError(err)
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

func toModel(row Row) (domain.EntityAspectRow, error) {
	model := domain.EntityAspectRow{
		Urn:        row.Urn,
		Aspect:     row.Aspect,
		Version:    row.Version,
		Payload:    datatypes.JSON(row.Payload),
		CreatedOn:  row.CreatedOn,
		CreatedBy:  row.CreatedBy,
		CreatedFor: row.CreatedFor,
	}
	if row.Metadata != nil {
		data, err := json.Marshal(row.Metadata)
		if err != nil {
			return model, fmt.Errorf("encode system metadata for (%s, %s): %w", row.Urn, row.Aspect, err)
		}
		model.SystemMetadata = datatypes.JSON(data)
	}
	return model, nil
}

func fromModel(model domain.EntityAspectRow) (*Row, error) {
	row := &Row{
		Urn:        model.Urn,
		Aspect:     model.Aspect,
		Version:    model.Version,
		Payload:    json.RawMessage(model.Payload),
		CreatedOn:  model.CreatedOn,
		CreatedBy:  model.CreatedBy,
		CreatedFor: model.CreatedFor,
	}
	if len(model.SystemMetadata) > 0 {
		var meta domain.SystemMetadata
		if err := json.Unmarshal(model.SystemMetadata, &meta); err != nil {
			return nil, fmt.Errorf("decode system metadata for (%s, %s, %d): %w", model.Urn, model.Aspect, model.Version, err)
		}
		row.Metadata = &meta
	}
	return row, nil
}

func fromModels(models []domain.EntityAspectRow) ([]Row, error) {
	out := make([]Row, 0, len(models))
	for _, m := range models {
		row, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, nil
}

// isWriteRace recognizes unique-key and serialization failures, the two
// shapes an optimistic commit race takes on Postgres.
func isWriteRace(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			return true
		}
	}
	return false
}

// classifyGormError maps storage failures at DAO call sites onto the shared
// taxonomy: write races become ErrConflict (retryable), everything else
// unexpected becomes ErrBackend.
func classifyGormError(err error) error {
	if err == nil {
		return nil
	}
	if isWriteRace(err) {
		return fmt.Errorf("%w: %v", pkgerrors.ErrConflict, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", pkgerrors.ErrBackend, err)
}

// classifyCommitError handles the transaction boundary: closure errors are
// already classified (or belong to the caller) and pass through unchanged;
// only a race detected at commit time is mapped to ErrConflict.
func classifyCommitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pkgerrors.ErrConflict) {
		return err
	}
	if isWriteRace(err) {
		return fmt.Errorf("%w: %v", pkgerrors.ErrConflict, err)
	}
	return err
}

var _ AspectDao = (*GormAspectDao)(nil)
var _ AspectDao = (*MemoryAspectDao)(nil)

// now is stubbed in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }
