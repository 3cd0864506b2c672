package handlers

import (
	"net/http"

	"catalogsync/internal/catalog"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/store"

	"github.com/gin-gonic/gin"
)

type CategoryHandler struct {
	catalog   *catalog.Service
	hierarchy *catalog.HierarchyBuilder
	store     *store.Store
	logger    *logger.Logger
}

func NewCategoryHandler(svc *catalog.Service, hierarchy *catalog.HierarchyBuilder, st *store.Store, logger *logger.Logger) *CategoryHandler {
	return &CategoryHandler{
		catalog:   svc,
		hierarchy: hierarchy,
		store:     st,
		logger:    logger,
	}
}

// List returns leaf categories with product counts and the sync allow-list
// config rows.
func (h *CategoryHandler) List(c *gin.Context) {
	config, err := h.store.Categories(c.Request.Context())
	if err != nil {
		h.logger.Error("%v", err)
		config = []models.Category{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   h.catalog.Categories(c.Request.Context()),
		"config": config,
	})
}

func (h *CategoryHandler) Hierarchy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.hierarchy.Build(c.Request.Context())})
}
