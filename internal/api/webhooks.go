// webhooks.go implements owner-scoped webhook CRUD, on-demand invocation and log listing.
// Every handler that addresses a single webhook runs the ownership guard first, so a
// missing webhook is reported as 404 and someone else's as 403.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hookrelay/hookrelay/internal/apierrors"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/middleware"
	"github.com/hookrelay/hookrelay/internal/webhooks"
)

const msgInvalidBody = "Invalid body."

// WebhookHandlers handles /webhook endpoints
type WebhookHandlers struct {
	registry   *webhooks.Registry
	dispatcher *webhooks.Dispatcher
}

// NewWebhookHandlers creates a new WebhookHandlers instance
func NewWebhookHandlers(registry *webhooks.Registry, dispatcher *webhooks.Dispatcher) *WebhookHandlers {
	return &WebhookHandlers{registry: registry, dispatcher: dispatcher}
}

// webhookRequest is the body of POST and PUT. The target may be sent as url,
// callback or target.
type webhookRequest struct {
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Callback string            `json:"callback"`
	Target   string            `json:"target"`
	Headers  map[string]string `json:"headers"`
	Body     *string           `json:"body"`
}

func (r *webhookRequest) target() string {
	switch {
	case r.URL != "":
		return r.URL
	case r.Callback != "":
		return r.Callback
	default:
		return r.Target
	}
}

// authorized loads the :id webhook and checks that the caller owns it
func (h *WebhookHandlers) authorized(c *gin.Context) (*models.Webhook, bool) {
	w, err := h.registry.Authorize(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return w, true
}

// ListHandler lists the caller's webhooks
// GET /webhook
func (h *WebhookHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.registry.List(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if list == nil {
			list = []models.Webhook{}
		}
		c.JSON(http.StatusOK, list)
	}
}

// CreateHandler registers a webhook owned by the caller
// POST /webhook
func (h *WebhookHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req webhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apierrors.BadRequest(msgInvalidBody))
			return
		}

		w, err := h.registry.Create(c.Request.Context(), middleware.UserID(c), webhooks.CreateInput{
			Method:  req.Method,
			URL:     req.target(),
			Headers: req.Headers,
			Body:    req.Body,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, w)
	}
}

// ShowHandler returns one webhook
// GET /webhook/:id
func (h *WebhookHandlers) ShowHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, ok := h.authorized(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

// UpdateHandler replaces a webhook's definition
// PUT /webhook/:id
func (h *WebhookHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, ok := h.authorized(c)
		if !ok {
			return
		}

		var req webhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apierrors.BadRequest(msgInvalidBody))
			return
		}

		updated, err := h.registry.Update(c.Request.Context(), w.ID, webhooks.UpdateInput{
			Method:  req.Method,
			URL:     req.target(),
			Headers: req.Headers,
			Body:    req.Body,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// PatchHandler applies a partial update; empty values leave fields unchanged
// PATCH /webhook/:id
func (h *WebhookHandlers) PatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, ok := h.authorized(c)
		if !ok {
			return
		}

		var patch webhooks.WebhookPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			respondError(c, apierrors.BadRequest(msgInvalidBody))
			return
		}

		updated, err := h.registry.Patch(c.Request.Context(), w.ID, patch)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteHandler removes a webhook and its logs
// DELETE /webhook/:id
func (h *WebhookHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, ok := h.authorized(c)
		if !ok {
			return
		}

		if err := h.registry.Delete(c.Request.Context(), w.ID); err != nil {
			respondError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// CallHandler invokes the webhook once and returns the captured response
// GET /webhook/:id/call
func (h *WebhookHandlers) CallHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, ok := h.authorized(c)
		if !ok {
			return
		}

		result, err := h.dispatcher.Dispatch(c.Request.Context(), w)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// LogsHandler lists the newest dispatch logs of a webhook
// GET /webhook/:id/logs?limit=50
func (h *WebhookHandlers) LogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, ok := h.authorized(c)
		if !ok {
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				respondError(c, apierrors.BadRequest("Invalid limit."))
				return
			}
			limit = n
		}

		logs, err := h.dispatcher.Logs(c.Request.Context(), w.ID, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		if logs == nil {
			logs = []models.WebhookLog{}
		}

		c.JSON(http.StatusOK, logs)
	}
}
