package kvstore

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry maps to the kv_entries table created by pkg/migrate.
type Entry struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Entry) TableName() string { return "kv_entries" }

// SQL stores each named snapshot as one kv_entries row.
type SQL struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSQL(db *gorm.DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

func (s *SQL) Get(ctx context.Context, name string) (string, bool, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load kv entry").WithDetails(name)
	}
	return entry.Value, true, nil
}

func (s *SQL) Set(ctx context.Context, name, value string) error {
	entry := Entry{Name: name, Value: value, UpdatedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).
		Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert kv entry").WithDetails(name)
	}
	return nil
}

func (s *SQL) Remove(ctx context.Context, name string) error {
	err := s.db.WithContext(ctx).Where("name = ?", name).Delete(&Entry{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete kv entry").WithDetails(name)
	}
	return nil
}
