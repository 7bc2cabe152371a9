package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/therickybobbeh/depscan/internal/cache"
	"github.com/therickybobbeh/depscan/internal/model/responses"
)

// CacheHandler exposes maintenance operations over the vulnerability cache.
type CacheHandler struct {
	store *cache.Store
	log   *logrus.Logger
}

func NewCacheHandler(store *cache.Store, log *logrus.Logger) *CacheHandler {
	return &CacheHandler{store: store, log: log}
}

// GetStats reports entry count and payload size.
func (h *CacheHandler) GetStats(c *gin.Context) {
	if h.store == nil {
		responses.JSONErrorResponse(c, http.StatusNotFound, "not_found", "cache disabled")
		return
	}
	stats, err := h.store.GetStats()
	if err != nil {
		h.log.WithError(err).Error("cache stats failed")
		responses.JSONErrorResponse(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	responses.JSONSuccessResponse(c, http.StatusOK, "cache stats", stats)
}

// Cleanup deletes expired entries.
func (h *CacheHandler) Cleanup(c *gin.Context) {
	if h.store == nil {
		responses.JSONErrorResponse(c, http.StatusNotFound, "not_found", "cache disabled")
		return
	}
	removed, err := h.store.CleanupExpired()
	if err != nil {
		h.log.WithError(err).Error("cache cleanup failed")
		responses.JSONErrorResponse(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	responses.JSONSuccessResponse(c, http.StatusOK, "expired entries removed", gin.H{"removed": removed})
}
