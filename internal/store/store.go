// Package store is the storage engine: idempotent product upserts, the
// search index kept in step with every write, category config and the
// sync run ledger.
package store

import (
	"context"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db     *gorm.DB
	logger *logger.Logger
	now    func() time.Time
}

func New(db *gorm.DB, logger *logger.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

// DB exposes the underlying handle for read-side services.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// UpsertError is a single record that could not be written.
type UpsertError struct {
	ProductID string
	Err       error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("failed to upsert product %s: %v", e.ProductID, e.Err)
}

func (e *UpsertError) Unwrap() error {
	return e.Err
}

// BatchResult summarizes one page written in one transaction.
type BatchResult struct {
	Added   int
	Updated int
	Failed  []*UpsertError
}

// Upsert writes a single product in its own transaction.
func (s *Store) Upsert(ctx context.Context, p *models.Product) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Product
		err := tx.Where("id = ?", p.ID).Limit(1).Find(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to load product %s: %w", p.ID, err)
		}
		var prev *models.Product
		if existing.ID != "" {
			prev = &existing
		}
		created, err = s.upsertOne(tx, p, prev)
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// UpsertBatch writes one page inside one transaction. Existing ids are
// loaded up front; each record then runs under its own savepoint so that a
// failing record is rolled back and skipped without aborting the page.
func (s *Store) UpsertBatch(ctx context.Context, products []models.Product) (BatchResult, error) {
	var result BatchResult
	if len(products) == 0 {
		return result, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, 0, len(products))
		for i := range products {
			ids = append(ids, products[i].ID)
		}

		var rows []models.Product
		if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load existing products: %w", err)
		}
		existing := make(map[string]*models.Product, len(rows))
		for i := range rows {
			existing[rows[i].ID] = &rows[i]
		}

		for i := range products {
			p := &products[i]
			sp := fmt.Sprintf("upsert_%d", i)
			if err := tx.SavePoint(sp).Error; err != nil {
				return fmt.Errorf("failed to create savepoint: %w", err)
			}

			created, err := s.upsertOne(tx, p, existing[p.ID])
			if err != nil {
				if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
					return fmt.Errorf("failed to roll back record %s: %w", p.ID, rbErr)
				}
				uerr := &UpsertError{ProductID: p.ID, Err: err}
				s.logger.Error("%v", uerr)
				result.Failed = append(result.Failed, uerr)
				continue
			}

			if created {
				result.Added++
			} else {
				result.Updated++
			}
			existing[p.ID] = p
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

// upsertOne inserts p or overwrites the mutable fields of prev. Control
// fields are set only on insert. An update carrying identical content only
// touches last_synced_at.
func (s *Store) upsertOne(tx *gorm.DB, p *models.Product, prev *models.Product) (bool, error) {
	now := s.now()
	p.LastSyncedAt = now

	if prev == nil {
		p.ShowInAI = true
		p.Priority = 0
		p.CustomDescription = nil
		if err := tx.Create(p).Error; err != nil {
			return false, err
		}
		return true, putSearchDocument(tx, p)
	}

	if prev.SameContent(p) {
		err := tx.Model(&models.Product{ID: p.ID}).UpdateColumn("last_synced_at", now).Error
		return false, err
	}

	if err := tx.Model(p).Select(models.MutableColumns).Updates(p).Error; err != nil {
		return false, err
	}
	return false, putSearchDocument(tx, p)
}

// EnsureShowInAI is the post-sync repair pass: products left hidden or
// without an AI visibility flag are made visible again, unless an operator
// locked the hide.
func (s *Store) EnsureShowInAI(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("(show_in_ai = ? OR show_in_ai IS NULL) AND show_in_ai_locked = ?", false, false).
		UpdateColumn("show_in_ai", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to repair ai visibility: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SetShowInAI records an operator's visibility choice. Hiding locks the row
// against the repair pass, showing releases it. Returns false when the
// product does not exist.
func (s *Store) SetShowInAI(ctx context.Context, id string, show bool) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"show_in_ai": show, "show_in_ai_locked": !show})
	if res.Error != nil {
		return false, fmt.Errorf("failed to set ai visibility of %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// EnabledCategories returns the persisted allow-list.
func (s *Store) EnabledCategories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("name").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return cats, nil
}

// ObserveCategories records leaf categories not seen before. Existing rows
// are left untouched.
func (s *Store) ObserveCategories(ctx context.Context, products []models.Product, enabled bool) error {
	seen := make(map[string]bool)
	var cats []models.Category
	for i := range products {
		name := products[i].Category
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		cats = append(cats, models.Category{Name: name, CategoryPath: products[i].CategoryPath, Enabled: enabled})
	}
	if len(cats) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&cats).Error
	if err != nil {
		return fmt.Errorf("failed to record categories: %w", err)
	}
	return nil
}

// Categories lists every category config row.
func (s *Store) Categories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := s.db.WithContext(ctx).Order("name").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return cats, nil
}
