package store

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"catalogsync/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const rebuildBatchSize = 500

// Fold lowercases s and strips diacritics so that "Bútor" and "butor"
// produce the same search key.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// SearchDocument is the indexed text of a product. Fields are separated by
// newlines so a search term can never match across two fields.
func SearchDocument(p *models.Product) string {
	return Fold(strings.Join([]string{p.Name, p.Category, p.Description, p.ParamString}, "\n"))
}

// putSearchDocument is the write-time hook keeping the index in step with
// the canonical row. It must run in the same transaction as the write.
func putSearchDocument(tx *gorm.DB, p *models.Product) error {
	doc := models.ProductSearch{
		ProductID: p.ID,
		Document:  SearchDocument(p),
		UpdatedAt: time.Now(),
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("failed to index product %s: %w", p.ID, err)
	}
	return nil
}

// RebuildSearchIndex recreates every search document from the products
// table. It does not depend on sync history or on the write-time hook, so
// it serves both bootstrap and corruption recovery.
func (s *Store) RebuildSearchIndex(ctx context.Context) (int, error) {
	indexed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ProductSearch{}).Error; err != nil {
			return fmt.Errorf("failed to clear search index: %w", err)
		}

		var batch []models.Product
		res := tx.Model(&models.Product{}).FindInBatches(&batch, rebuildBatchSize, func(btx *gorm.DB, _ int) error {
			docs := make([]models.ProductSearch, 0, len(batch))
			now := time.Now()
			for i := range batch {
				docs = append(docs, models.ProductSearch{
					ProductID: batch[i].ID,
					Document:  SearchDocument(&batch[i]),
					UpdatedAt: now,
				})
			}
			if err := tx.CreateInBatches(docs, rebuildBatchSize).Error; err != nil {
				return fmt.Errorf("failed to write search documents: %w", err)
			}
			indexed += len(docs)
			return nil
		})
		return res.Error
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Search index rebuilt: %d documents", indexed)
	return indexed, nil
}
