package domain

import (
	"time"

	"gorm.io/datatypes"
)

// EntityAspectRow is the storage shape of one aspect version. Version 0
// always holds the current value; positive versions hold history, higher
// numbers being older.
type EntityAspectRow struct {
	Urn            string         `gorm:"column:urn;primaryKey;size:500" json:"urn"`
	Aspect         string         `gorm:"column:aspect;primaryKey;size:200" json:"aspect"`
	Version        int64          `gorm:"column:version;primaryKey" json:"version"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	SystemMetadata datatypes.JSON `gorm:"column:system_metadata;type:jsonb" json:"system_metadata,omitempty"`
	CreatedOn      time.Time      `gorm:"column:created_on;not null;index" json:"created_on"`
	CreatedBy      string         `gorm:"column:created_by;not null" json:"created_by"`
	CreatedFor     string         `gorm:"column:created_for" json:"created_for,omitempty"`
}

func (EntityAspectRow) TableName() string { return "entity_aspect" }

// NumericIDRow backs per-namespace synthetic id allocation.
type NumericIDRow struct {
	Namespace string `gorm:"column:namespace;primaryKey;size:100" json:"namespace"`
	Counter   int64  `gorm:"column:counter;not null;default:0" json:"counter"`
}

func (NumericIDRow) TableName() string { return "numeric_id" }
