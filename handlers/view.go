package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/vpaste/models"
	"github.com/johnwmail/vpaste/utils"
)

// previewCSP locks the preview page down to its own inline styles
const previewCSP = "default-src 'none'; style-src 'unsafe-inline'; img-src 'self'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'"

// Preview renders a paste as HTML via GET /p/:id without consuming a view
func (h *PasteHandler) Preview(c *gin.Context) {
	c.Header("Content-Security-Policy", previewCSP)
	c.Header("Cache-Control", "no-store")

	id := c.Param("id")
	if !h.ids.Valid(id) {
		c.HTML(http.StatusNotFound, "notfound.html", nil)
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	res, err := h.service.Get(ctx, id, h.now(c))
	if err != nil {
		h.logger.Error("Failed to load paste preview", "id", id, "error", err)
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !res.Live {
		c.HTML(http.StatusNotFound, "notfound.html", nil)
		return
	}

	expires := "Never"
	if res.ExpiresAt != nil {
		expires = utils.FormatISO(*res.ExpiresAt)
	}
	views := fmt.Sprintf("%d / ∞", res.Paste.Views)
	if res.Paste.MaxViews != models.Unlimited {
		views = fmt.Sprintf("%d / %d", res.Paste.Views, res.Paste.MaxViews)
	}

	c.HTML(http.StatusOK, "paste.html", gin.H{
		"ID":      id,
		"Content": res.Paste.Content,
		"Expires": expires,
		"Views":   views,
	})
}
