package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultCategory is stored when a supplier record carries no usable category.
const DefaultCategory = "Other"

// CategoryPathSeparator delimits the segments of Product.CategoryPath.
const CategoryPathSeparator = "|"

type Product struct {
	ID           string   `json:"id" gorm:"primaryKey;type:varchar(191)"`
	Name         string   `json:"name" gorm:"not null"`
	Price        int64    `json:"price" gorm:"not null;default:0;index"`
	Category     string   `json:"category" gorm:"not null;index"`
	CategoryPath string   `json:"category_path" gorm:"index"`
	Images       []string `json:"images" gorm:"type:text;serializer:json"`
	Description  string   `json:"description" gorm:"type:text"`
	ParamString  string   `json:"param_string" gorm:"type:text"`
	Link         string   `json:"link"`
	InStock      bool     `json:"in_stock" gorm:"not null"`
	StockQty     *int     `json:"stock_qty"`

	// Control fields, owned by operators. Sync only sets ShowInAI on insert.
	ShowInAI bool `json:"show_in_ai" gorm:"column:show_in_ai;not null;default:true"`
	// ShowInAILocked marks a hide chosen by an operator; the post-sync
	// repair pass leaves locked rows alone.
	ShowInAILocked    bool    `json:"show_in_ai_locked" gorm:"column:show_in_ai_locked;not null;default:false"`
	Priority          int     `json:"priority" gorm:"not null;default:0"`
	CustomDescription *string `json:"custom_description" gorm:"type:text"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastSyncedAt time.Time `json:"last_synced_at" gorm:"index"`
}

// MutableColumns are the columns a re-sync is allowed to overwrite.
var MutableColumns = []string{
	"name", "price", "category", "category_path", "images", "description",
	"param_string", "link", "in_stock", "stock_qty", "last_synced_at",
}

// MainCategory is the first path segment, or the leaf when no path is known.
func (p *Product) MainCategory() string {
	return MainCategoryOf(p.CategoryPath, p.Category)
}

// SameContent reports whether the synced fields of p and o are identical.
func (p *Product) SameContent(o *Product) bool {
	if p.Name != o.Name || p.Price != o.Price || p.Category != o.Category ||
		p.CategoryPath != o.CategoryPath || p.Description != o.Description ||
		p.ParamString != o.ParamString || p.Link != o.Link || p.InStock != o.InStock {
		return false
	}
	if (p.StockQty == nil) != (o.StockQty == nil) {
		return false
	}
	if p.StockQty != nil && *p.StockQty != *o.StockQty {
		return false
	}
	if len(p.Images) != len(o.Images) {
		return false
	}
	for i := range p.Images {
		if p.Images[i] != o.Images[i] {
			return false
		}
	}
	return true
}

func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.Price < 0 {
		p.Price = 0
	}
	if strings.TrimSpace(p.Category) == "" {
		p.Category = DefaultCategory
	}
	return nil
}

// MainCategoryOf derives the navigation main category from a path and leaf.
func MainCategoryOf(categoryPath, category string) string {
	if categoryPath != "" {
		if i := strings.Index(categoryPath, CategoryPathSeparator); i >= 0 {
			return strings.TrimSpace(categoryPath[:i])
		}
		return strings.TrimSpace(categoryPath)
	}
	return strings.TrimSpace(category)
}

// LeafOf returns the last segment of a pipe-delimited category path.
func LeafOf(categoryPath string) string {
	segments := strings.Split(categoryPath, CategoryPathSeparator)
	return segments[len(segments)-1]
}

// ProductSearch is the denormalized full-text document of one product.
// It is written alongside every product write and can be rebuilt from
// the products table at any time.
type ProductSearch struct {
	ProductID string    `json:"product_id" gorm:"primaryKey;type:varchar(191)"`
	Document  string    `json:"document" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProductSearch) TableName() string {
	return "product_search"
}
