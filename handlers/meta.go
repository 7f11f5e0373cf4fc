package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/vpaste/models"
	"github.com/johnwmail/vpaste/utils"
)

// MetaResponse describes a paste without its content
type MetaResponse struct {
	ID             string  `json:"id"`
	Views          int64   `json:"views"`
	MaxViews       *int64  `json:"max_views"`
	RemainingViews *int64  `json:"remaining_views"`
	CreatedAt      string  `json:"created_at"`
	ExpiresAt      *string `json:"expires_at"`
}

// Meta handles metadata retrieval via GET /api/pastes/:id/meta. It never
// consumes a view.
func (h *PasteHandler) Meta(c *gin.Context) {
	id := c.Param("id")
	if !h.ids.Valid(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Paste not found"})
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	res, err := h.service.Get(ctx, id, h.now(c))
	if err != nil {
		h.logger.Error("Failed to load paste metadata", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !res.Live {
		c.JSON(http.StatusNotFound, gin.H{"error": "Paste not found"})
		return
	}

	p := res.Paste
	resp := MetaResponse{
		ID:        id,
		Views:     p.Views,
		CreatedAt: utils.FormatISO(time.UnixMilli(p.CreatedAt)),
		ExpiresAt: utils.FormatISOPtr(res.ExpiresAt),
	}
	if p.MaxViews != models.Unlimited {
		maxViews := p.MaxViews
		remaining := res.RemainingViews
		resp.MaxViews = &maxViews
		resp.RemainingViews = &remaining
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}
