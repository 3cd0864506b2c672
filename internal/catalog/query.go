// Package catalog serves read access to the synced catalog: filtered product
// listings, aggregate statistics and the category navigation tree.
package catalog

import (
	"context"
	"errors"
	"strings"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/store"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Sort string

const (
	SortDefault   Sort = ""
	SortPriceAsc  Sort = "price_asc"
	SortPriceDesc Sort = "price_desc"
)

// Filters select products. Zero values mean "no constraint".
type Filters struct {
	Category   string
	Categories []string
	// Main is a display main category; every raw spelling grouped under it
	// matches.
	Main     string
	ShowInAI *bool
	InStock  *bool
	MinPrice *int64
	MaxPrice *int64
	// Query is split on whitespace; every term must match.
	Query  string
	Limit  int
	Offset int
	Sort   Sort
}

// PageLimit is the page size a listing applies: DefaultLimit when unset,
// capped at MaxLimit.
func (f Filters) PageLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	}
	return f.Limit
}

type Stats struct {
	Total        int64   `json:"total"`
	MinPrice     int64   `json:"min_price"`
	MaxPrice     int64   `json:"max_price"`
	AvgPrice     float64 `json:"avg_price"`
	InStockCount int64   `json:"in_stock_count"`
}

type CategoryCount struct {
	Name         string `json:"name"`
	CategoryPath string `json:"category_path"`
	ProductCount int64  `json:"product_count"`
}

// Service never returns errors: failures are logged and reads degrade to
// empty results so callers keep serving.
type Service struct {
	db     *gorm.DB
	cfg    *HierarchyConfig
	logger *logger.Logger
}

func NewService(db *gorm.DB, cfg *HierarchyConfig, logger *logger.Logger) *Service {
	return &Service{db: db, cfg: cfg, logger: logger}
}

func (s *Service) List(ctx context.Context, f Filters) []models.Product {
	q := s.applyFilters(s.db.WithContext(ctx).Model(&models.Product{}), f)

	switch f.Sort {
	case SortPriceAsc:
		q = q.Order("price ASC").Order("name ASC")
	case SortPriceDesc:
		q = q.Order("price DESC").Order("name ASC")
	default:
		q = q.Order("priority DESC").Order("name ASC")
	}

	limit := f.PageLimit()
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var products []models.Product
	if err := q.Limit(limit).Offset(offset).Find(&products).Error; err != nil {
		s.logger.Error("Failed to list products: %v", err)
		return []models.Product{}
	}
	return products
}

func (s *Service) Count(ctx context.Context, f Filters) int64 {
	var n int64
	q := s.applyFilters(s.db.WithContext(ctx).Model(&models.Product{}), f)
	if err := q.Count(&n).Error; err != nil {
		s.logger.Error("Failed to count products: %v", err)
		return 0
	}
	return n
}

func (s *Service) Stats(ctx context.Context, f Filters) Stats {
	var st Stats
	q := s.applyFilters(s.db.WithContext(ctx).Model(&models.Product{}), f)
	err := q.Select(`COUNT(*) AS total,
		COALESCE(MIN(price), 0) AS min_price,
		COALESCE(MAX(price), 0) AS max_price,
		COALESCE(AVG(price), 0) AS avg_price,
		COALESCE(SUM(CASE WHEN in_stock THEN 1 ELSE 0 END), 0) AS in_stock_count`).
		Scan(&st).Error
	if err != nil {
		s.logger.Error("Failed to compute product stats: %v", err)
		return Stats{}
	}
	return st
}

// Get returns nil when the product does not exist or cannot be read.
func (s *Service) Get(ctx context.Context, id string) *models.Product {
	var p models.Product
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("Failed to load product %s: %v", id, err)
		}
		return nil
	}
	return &p
}

// Categories lists leaf categories with product counts.
func (s *Service) Categories(ctx context.Context) []CategoryCount {
	var cats []CategoryCount
	err := s.db.WithContext(ctx).Model(&models.Product{}).
		Select("category AS name, MAX(COALESCE(category_path, '')) AS category_path, COUNT(*) AS product_count").
		Group("category").
		Order("category").
		Scan(&cats).Error
	if err != nil {
		s.logger.Error("Failed to list categories: %v", err)
		return []CategoryCount{}
	}
	return cats
}

// applyFilters is the single filter routine behind List, Count and Stats.
func (s *Service) applyFilters(q *gorm.DB, f Filters) *gorm.DB {
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if len(f.Categories) > 0 {
		q = q.Where("category IN ?", f.Categories)
	}
	if f.Main != "" {
		cond, args := mainCondition(s.cfg.RawMains(f.Main))
		q = q.Where(cond, args...)
	}
	if f.ShowInAI != nil {
		q = q.Where("show_in_ai = ?", *f.ShowInAI)
		if *f.ShowInAI {
			q = q.Where("price > 0")
			if len(s.cfg.ExcludedMains) > 0 {
				cond, args := mainCondition(s.cfg.ExcludedMains)
				q = q.Where("NOT ("+cond+")", args...)
			}
		}
	}
	if f.InStock != nil {
		q = q.Where("in_stock = ?", *f.InStock)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	for _, term := range strings.Fields(store.Fold(f.Query)) {
		q = q.Where(`id IN (SELECT product_id FROM product_search WHERE document LIKE ? ESCAPE '\')`, "%"+escapeLike(term)+"%")
	}
	return q
}

// mainCondition matches products whose main category is any of mains: the
// first path segment when a path exists, the leaf otherwise.
func mainCondition(mains []string) (string, []any) {
	clauses := make([]string, 0, len(mains))
	args := make([]any, 0, 3*len(mains))
	for _, m := range mains {
		m = strings.TrimSpace(m)
		clauses = append(clauses, `(category_path = ? OR category_path LIKE ? ESCAPE '\' OR (COALESCE(category_path, '') = '' AND category = ?))`)
		args = append(args, m, escapeLike(m)+models.CategoryPathSeparator+"%", m)
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
