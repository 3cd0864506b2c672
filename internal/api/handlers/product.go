package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"catalogsync/internal/catalog"
	"catalogsync/internal/logger"
	"catalogsync/internal/store"

	"github.com/gin-gonic/gin"
)

type ProductHandler struct {
	catalog *catalog.Service
	store   *store.Store
	logger  *logger.Logger
}

func NewProductHandler(svc *catalog.Service, st *store.Store, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: svc,
		store:   st,
		logger:  logger,
	}
}

func (h *ProductHandler) List(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	products := h.catalog.List(c.Request.Context(), filters)
	total := h.catalog.Count(c.Request.Context(), filters)

	c.JSON(http.StatusOK, gin.H{
		"data": products,
		"pagination": gin.H{
			"limit":  filters.PageLimit(),
			"offset": filters.Offset,
			"total":  total,
		},
	})
}

func (h *ProductHandler) Stats(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": h.catalog.Stats(c.Request.Context(), filters)})
}

func (h *ProductHandler) Get(c *gin.Context) {
	product := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

type visibilityRequest struct {
	ShowInAI *bool `json:"show_in_ai" binding:"required"`
}

// SetVisibility is the operator switch for show_in_ai. A hide set here
// survives later syncs; showing the product again releases it.
func (h *ProductHandler) SetVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	found, err := h.store.SetShowInAI(c.Request.Context(), c.Param("id"), *req.ShowInAI)
	if err != nil {
		h.logger.Error("%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": c.Param("id"), "show_in_ai": *req.ShowInAI}})
}

func parseFilters(c *gin.Context) (catalog.Filters, error) {
	f := catalog.Filters{
		Category: strings.TrimSpace(c.Query("category")),
		Main:     strings.TrimSpace(c.Query("main")),
		Query:    c.Query("q"),
		Sort:     catalog.Sort(c.Query("sort")),
	}

	if raw := c.Query("categories"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				f.Categories = append(f.Categories, name)
			}
		}
	}

	switch f.Sort {
	case catalog.SortDefault, catalog.SortPriceAsc, catalog.SortPriceDesc:
	case "default":
		f.Sort = catalog.SortDefault
	default:
		return f, fmt.Errorf("invalid sort %q", f.Sort)
	}

	var err error
	if f.ShowInAI, err = queryBool(c, "ai"); err != nil {
		return f, err
	}
	if f.InStock, err = queryBool(c, "in_stock"); err != nil {
		return f, err
	}
	if f.MinPrice, err = queryInt64(c, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryInt64(c, "max_price"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return &v, nil
}

func queryInt64(c *gin.Context, key string) (*int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return &v, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}
