package catalog

import (
	"context"
	"sort"
	"strings"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"gorm.io/gorm"
)

type Node struct {
	Name         string `json:"name"`
	ProductCount int64  `json:"product_count"`
}

type MainNode struct {
	DisplayMain  string `json:"display_main"`
	ProductCount int64  `json:"product_count"`
	Children     []Node `json:"children"`
}

// HierarchyCache stores built trees between syncs.
type HierarchyCache interface {
	Get(ctx context.Context) ([]MainNode, bool)
	Set(ctx context.Context, tree []MainNode)
	Invalidate(ctx context.Context)
}

type HierarchyBuilder struct {
	db     *gorm.DB
	cfg    *HierarchyConfig
	cache  HierarchyCache
	logger *logger.Logger
}

// NewHierarchyBuilder accepts a nil cache.
func NewHierarchyBuilder(db *gorm.DB, cfg *HierarchyConfig, cache HierarchyCache, logger *logger.Logger) *HierarchyBuilder {
	return &HierarchyBuilder{db: db, cfg: cfg, cache: cache, logger: logger}
}

type pathCount struct {
	CategoryPath string
	Category     string
	N            int64
}

type mainAgg struct {
	count    int64
	children map[string]int64
}

// Build derives the two-level navigation tree. Store failures are logged
// and yield an empty tree.
func (b *HierarchyBuilder) Build(ctx context.Context) []MainNode {
	if b.cache != nil {
		if tree, ok := b.cache.Get(ctx); ok {
			return tree
		}
	}

	var rows []pathCount
	err := b.db.WithContext(ctx).Model(&models.Product{}).
		Select("COALESCE(category_path, '') AS category_path, category, COUNT(*) AS n").
		Group("category_path, category").
		Scan(&rows).Error
	if err != nil {
		b.logger.Error("Failed to aggregate categories: %v", err)
		return []MainNode{}
	}

	tree := b.aggregate(rows)
	if b.cache != nil {
		b.cache.Set(ctx, tree)
	}
	return tree
}

// Invalidate drops the cached tree so the next Build reads the store.
func (b *HierarchyBuilder) Invalidate(ctx context.Context) {
	if b.cache != nil {
		b.cache.Invalidate(ctx)
	}
}

func (b *HierarchyBuilder) aggregate(rows []pathCount) []MainNode {
	mains := make(map[string]*mainAgg)
	for _, r := range rows {
		rawMain := models.MainCategoryOf(r.CategoryPath, r.Category)
		if rawMain == "" || b.cfg.Excluded(rawMain) {
			continue
		}
		display := b.cfg.DisplayName(rawMain)

		agg, ok := mains[display]
		if !ok {
			agg = &mainAgg{children: make(map[string]int64)}
			mains[display] = agg
		}
		agg.count += r.N

		child := strings.TrimSpace(r.Category)
		if r.CategoryPath != "" && child != "" && child != rawMain && child != display {
			agg.children[child] += r.N
		}
	}

	tree := make([]MainNode, 0, len(mains))
	for display, agg := range mains {
		children := make([]Node, 0, len(agg.children))
		for name, n := range agg.children {
			children = append(children, Node{Name: name, ProductCount: n})
		}
		sort.Slice(children, func(i, j int) bool {
			if children[i].ProductCount != children[j].ProductCount {
				return children[i].ProductCount > children[j].ProductCount
			}
			return children[i].Name < children[j].Name
		})
		if len(children) > b.cfg.MaxChildren {
			children = children[:b.cfg.MaxChildren]
		}
		tree = append(tree, MainNode{DisplayMain: display, ProductCount: agg.count, Children: children})
	}

	sort.Slice(tree, func(i, j int) bool {
		oi, listedI := b.cfg.orderOf(tree[i].DisplayMain)
		oj, listedJ := b.cfg.orderOf(tree[j].DisplayMain)
		switch {
		case listedI && listedJ:
			return oi < oj
		case listedI != listedJ:
			return listedI
		case tree[i].ProductCount != tree[j].ProductCount:
			return tree[i].ProductCount > tree[j].ProductCount
		default:
			return tree[i].DisplayMain < tree[j].DisplayMain
		}
	})
	return tree
}
