// Package journal keeps, on the operator's machine, the online payments that were captured by the
// payment vendor but not recorded by the backend. Entries are reconciled by hand.
package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kannanru/studentfee/client/collection"
)

// Reconciliation is a captured payment awaiting manual reconciliation.
type Reconciliation struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"not null;index"`
	PaymentID string          `gorm:"not null;uniqueIndex"`
	Signature string          `gorm:"not null"`
	StudentID string          `gorm:"not null;index"`
	PlanID    string          `gorm:"not null"`
	HeadIDs   string          `gorm:"not null"` // comma separated
	Amount    decimal.Decimal `gorm:"type:text;not null"`
	Step      string          `gorm:"not null"`
	Error     string          `gorm:"not null"`
	CreatedAt time.Time
}

func (r Reconciliation) Heads() []string {
	if r.HeadIDs == "" {
		return nil
	}
	return strings.Split(r.HeadIDs, ",")
}

// Journal is a sqlite-backed collection.Journal.
type Journal struct {
	db *gorm.DB
}

var _ collection.Journal = (*Journal)(nil)

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrap(err, "creating journal directory")
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errors.Wrap(err, "opening journal")
	}
	if err = db.AutoMigrate(&Reconciliation{}); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, errors.Wrap(err, "migrating journal")
	}
	return &Journal{db: db}, nil
}

// Record stores rec. Recording the same gateway payment twice keeps the first entry.
func (j *Journal) Record(ctx context.Context, rec *collection.ReconciliationError) error {
	entry := Reconciliation{
		OrderID:   rec.OrderID,
		PaymentID: rec.PaymentID,
		Signature: rec.Signature,
		StudentID: rec.StudentID,
		PlanID:    rec.PlanID,
		HeadIDs:   strings.Join(rec.HeadIDs, ","),
		Amount:    rec.Amount,
		Step:      rec.Step,
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	}

	var count int64
	if err := j.db.WithContext(ctx).Model(&Reconciliation{}).Where("payment_id = ?", rec.PaymentID).Count(&count).Error; err != nil {
		return errors.Wrap(err, "looking up reconciliation")
	}
	if count > 0 {
		return nil
	}
	return errors.Wrap(j.db.WithContext(ctx).Create(&entry).Error, "recording reconciliation")
}

// List returns every entry, newest first.
func (j *Journal) List(ctx context.Context) ([]Reconciliation, error) {
	var recs []Reconciliation
	if err := j.db.WithContext(ctx).Order("created_at desc, id desc").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "listing reconciliations")
	}
	return recs, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
