package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/johnwmail/vpaste/config"
	"github.com/johnwmail/vpaste/internal/clock"
	"github.com/johnwmail/vpaste/internal/services"
	"github.com/johnwmail/vpaste/internal/slug"
	"github.com/johnwmail/vpaste/internal/validation"
	"github.com/johnwmail/vpaste/models"
	"github.com/johnwmail/vpaste/utils"
)

// PasteHandler handles the paste API and preview routes
type PasteHandler struct {
	service  *services.PasteService
	ids      *slug.Generator
	config   *config.Config
	clock    clock.Clock
	validate *validatorv10.Validate
	logger   *slog.Logger
}

// NewPasteHandler creates a new paste handler
func NewPasteHandler(service *services.PasteService, ids *slug.Generator, cfg *config.Config, logger *slog.Logger) *PasteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PasteHandler{
		service:  service,
		ids:      ids,
		config:   cfg,
		clock:    clock.System{},
		validate: validation.New(),
		logger:   logger,
	}
}

// CreateResponse is returned by POST /api/pastes
type CreateResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ViewResponse is returned by GET /api/pastes/:id. Nil fields encode as
// null, meaning unlimited.
type ViewResponse struct {
	Content        string  `json:"content"`
	RemainingViews *int64  `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

// now returns the request's notion of the current time; the test header is
// only honored in test mode.
func (h *PasteHandler) now(c *gin.Context) time.Time {
	return clock.FromRequest(c.Request, h.config.TestMode, h.clock)
}

func (h *PasteHandler) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.config.StoreTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.config.StoreTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

// Create handles paste creation via POST /api/pastes
func (h *PasteHandler) Create(c *gin.Context) {
	var req validation.CreatePasteRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	resp, err := h.service.Create(ctx, services.CreatePasteRequest{
		Content:    req.Content,
		TTLSeconds: req.TTLSeconds,
		MaxViews:   req.MaxViews,
	}, h.now(c))
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "validation_failed",
				"fields": map[string]string{verr.Field: verr.Message},
			})
			return
		}
		h.logger.Error("Failed to create paste", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	expires := "never"
	if resp.ExpiresAt != nil {
		expires = utils.FormatISO(*resp.ExpiresAt)
	}
	h.logger.Info("Paste created", "id", resp.ID, "created_at", utils.FormatISO(resp.CreatedAt), "expires_at", expires)

	c.JSON(http.StatusCreated, CreateResponse{
		ID:  resp.ID,
		URL: publicBaseURL(c, h.config.BaseURL) + "/p/" + resp.ID,
	})
}

// View consumes one view via GET /api/pastes/:id
func (h *PasteHandler) View(c *gin.Context) {
	id := c.Param("id")
	if !h.ids.Valid(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Paste not found"})
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	res, err := h.service.ConsumeView(ctx, id, h.now(c))
	if err != nil {
		h.logger.Error("Failed to consume paste view", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !res.Live {
		c.JSON(http.StatusNotFound, gin.H{"error": "Paste not found"})
		return
	}

	var remaining *int64
	if res.RemainingViews != models.Unlimited {
		remaining = &res.RemainingViews
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, ViewResponse{
		Content:        res.Paste.Content,
		RemainingViews: remaining,
		ExpiresAt:      utils.FormatISOPtr(res.ExpiresAt),
	})
}
