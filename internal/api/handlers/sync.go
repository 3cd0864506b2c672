package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"catalogsync/internal/logger"
	"catalogsync/internal/store"
	catalogsync "catalogsync/internal/sync"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	orchestrator *catalogsync.Orchestrator
	store        *store.Store
	logger       *logger.Logger
}

func NewSyncHandler(orch *catalogsync.Orchestrator, st *store.Store, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		orchestrator: orch,
		store:        st,
		logger:       logger,
	}
}

type triggerRequest struct {
	Categories []string `json:"categories"`
}

// Trigger starts a sync, or attaches to the running one.
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attached := h.orchestrator.Start(catalogsync.Options{Categories: req.Categories})
	message := "Sync started"
	if attached {
		message = "Sync already running"
	}
	h.logger.Info("%s", message)

	c.JSON(http.StatusAccepted, gin.H{
		"message":  message,
		"attached": attached,
	})
}

func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.orchestrator.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sync status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

func (h *SyncHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.orchestrator.History(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sync history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (h *SyncHandler) RebuildSearchIndex(c *gin.Context) {
	n, err := h.store.RebuildSearchIndex(c.Request.Context())
	if err != nil {
		h.logger.Error("%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rebuild search index"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"indexed": n}})
}
