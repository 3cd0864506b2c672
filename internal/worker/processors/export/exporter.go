// Package export materializes the synced catalog as a JSON feed.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/worker/processors/validation"

	"gorm.io/gorm"
)

const batchSize = 500

type Exporter struct {
	db        *gorm.DB
	sink      Sink
	prefix    string
	validator *validation.Validator
	logger    *logger.Logger
}

func New(db *gorm.DB, sink Sink, prefix string, logger *logger.Logger) *Exporter {
	return &Exporter{
		db:     db,
		sink:   sink,
		prefix: prefix,
		logger: logger,
	}
}

// WithValidator drops products with blocking feed issues from exports and
// counts every issue in the manifest.
func (e *Exporter) WithValidator(v *validation.Validator) *Exporter {
	e.validator = v
	return e
}

type FeedItem struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Price        int64    `json:"price"`
	Category     string   `json:"category"`
	CategoryPath string   `json:"category_path,omitempty"`
	Link         string   `json:"link,omitempty"`
	Images       []string `json:"images"`
	InStock      bool     `json:"in_stock"`
	StockQty     *int     `json:"stock_qty,omitempty"`
	ShowInAI     bool     `json:"show_in_ai"`
	Priority     int      `json:"priority"`
}

type Feed struct {
	RunID       string     `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Count       int        `json:"count"`
	Products    []FeedItem `json:"products"`
}

// Manifest describes one finished export.
type Manifest struct {
	RunID     string         `json:"run_id"`
	Count     int            `json:"count"`
	Skipped   int            `json:"skipped"`
	Issues    map[string]int `json:"issues,omitempty"`
	Locations []string       `json:"locations"`
}

// Export writes the full catalog twice: once under the run id and once as
// the "latest" feed.
func (e *Exporter) Export(ctx context.Context, runID string) (*Manifest, error) {
	feed := Feed{RunID: runID, GeneratedAt: time.Now().UTC(), Products: []FeedItem{}}
	manifest := &Manifest{RunID: runID}

	var batch []models.Product
	res := e.db.WithContext(ctx).Model(&models.Product{}).FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
		for i := range batch {
			if e.validator != nil {
				issues := e.validator.ValidateProduct(&batch[i])
				for _, issue := range issues {
					if manifest.Issues == nil {
						manifest.Issues = map[string]int{}
					}
					manifest.Issues[issue.Code]++
				}
				if validation.Blocking(issues) {
					manifest.Skipped++
					continue
				}
			}
			feed.Products = append(feed.Products, feedItem(&batch[i]))
		}
		return nil
	})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", res.Error)
	}
	feed.Count = len(feed.Products)

	body, err := json.Marshal(feed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feed: %w", err)
	}

	manifest.Count = feed.Count
	for _, key := range []string{
		path.Join(e.prefix, fmt.Sprintf("catalog-%s.json", runID)),
		path.Join(e.prefix, "latest.json"),
	} {
		loc, err := e.sink.Put(ctx, key, body, "application/json")
		if err != nil {
			return nil, err
		}
		manifest.Locations = append(manifest.Locations, loc)
	}

	e.logger.Info("Exported %d products for run %s (%d skipped)", feed.Count, runID, manifest.Skipped)
	return manifest, nil
}

func feedItem(p *models.Product) FeedItem {
	description := p.Description
	if p.CustomDescription != nil && *p.CustomDescription != "" {
		description = *p.CustomDescription
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return FeedItem{
		ID:           p.ID,
		Title:        p.Name,
		Description:  description,
		Price:        p.Price,
		Category:     p.Category,
		CategoryPath: p.CategoryPath,
		Link:         p.Link,
		Images:       images,
		InStock:      p.InStock,
		StockQty:     p.StockQty,
		ShowInAI:     p.ShowInAI,
		Priority:     p.Priority,
	}
}
