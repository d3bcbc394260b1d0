// Package webhooks owns webhook definitions and their invocation. The Registry provides
// owner-scoped CRUD over a WebhookStore, and the Dispatcher performs a single outbound
// request per call and appends a WebhookLog for every completed exchange.
//
// Failures are returned as *apierrors.Error so handlers can map them to HTTP status
// without inspecting store errors.
package webhooks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hookrelay/hookrelay/internal/apierrors"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/db/repositories"
	"github.com/hookrelay/hookrelay/internal/validation"
)

// WebhookStore persists webhook definitions
type WebhookStore interface {
	CreateWebhook(ctx context.Context, w *models.Webhook) error
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	ListWebhooksByUser(ctx context.Context, userID string) ([]models.Webhook, error)
	UpdateWebhook(ctx context.Context, w *models.Webhook) error
	DeleteWebhook(ctx context.Context, id string) error
}

// CreateInput describes a new webhook. An empty Method defaults to GET.
type CreateInput struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    *string
}

// UpdateInput replaces every mutable field of a webhook
type UpdateInput struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    *string
}

// Registry manages webhook definitions
type Registry struct {
	store WebhookStore
	newID func() string
}

// NewRegistry creates a Registry
func NewRegistry(store WebhookStore) *Registry {
	return &Registry{
		store: store,
		newID: func() string { return uuid.New().String() },
	}
}

// Create stores a new webhook owned by ownerID
func (r *Registry) Create(ctx context.Context, ownerID string, in CreateInput) (*models.Webhook, error) {
	method := validation.NormalizeMethod(in.Method)
	if method == "" {
		method = models.DefaultWebhookMethod
	}
	if err := validateDefinition(method, in.URL, in.Headers); err != nil {
		return nil, err
	}

	w := &models.Webhook{
		ID:      r.newID(),
		UserID:  ownerID,
		Method:  method,
		URL:     in.URL,
		Headers: copyHeaders(in.Headers),
		Body:    in.Body,
	}

	if err := r.store.CreateWebhook(ctx, w); err != nil {
		return nil, apierrors.Internal("Failed to save webhook.", err)
	}

	slog.Info("webhook created", "webhook_id", w.ID, "user_id", ownerID, "method", w.Method)
	return w, nil
}

// Get returns the webhook with id, or nil when it does not exist. It performs no
// ownership check; see Authorize.
func (r *Registry) Get(ctx context.Context, id string) (*models.Webhook, error) {
	w, err := r.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("Failed to load webhook.", err)
	}
	return w, nil
}

// List returns every webhook owned by ownerID
func (r *Registry) List(ctx context.Context, ownerID string) ([]models.Webhook, error) {
	list, err := r.store.ListWebhooksByUser(ctx, ownerID)
	if err != nil {
		return nil, apierrors.Internal("Failed to list webhooks.", err)
	}
	return list, nil
}

// Authorize loads the webhook with id and checks that requesterID owns it
func (r *Registry) Authorize(ctx context.Context, id, requesterID string) (*models.Webhook, error) {
	w, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckOwner(w, requesterID); err != nil {
		return nil, err
	}
	return w, nil
}

// Update replaces method, url, headers and body of the webhook with id.
// Omitted headers or body are cleared.
func (r *Registry) Update(ctx context.Context, id string, in UpdateInput) (*models.Webhook, error) {
	method := validation.NormalizeMethod(in.Method)
	if err := validateDefinition(method, in.URL, in.Headers); err != nil {
		return nil, err
	}

	w, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, apierrors.NotFound(msgWebhookNotFound)
	}

	w.Method = method
	w.URL = in.URL
	w.Headers = copyHeaders(in.Headers)
	w.Body = in.Body

	if err := r.save(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Patch applies a partial update to the webhook with id. A patch that carries no
// applicable field leaves the row untouched.
func (r *Registry) Patch(ctx context.Context, id string, patch WebhookPatch) (*models.Webhook, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	w, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, apierrors.NotFound(msgWebhookNotFound)
	}

	if !patch.Apply(w) {
		return w, nil
	}

	if err := r.save(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes the webhook with id together with its logs
func (r *Registry) Delete(ctx context.Context, id string) error {
	err := r.store.DeleteWebhook(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return apierrors.NotFound(msgWebhookNotFound)
	}
	if err != nil {
		return apierrors.Internal("Failed to delete webhook.", err)
	}

	slog.Info("webhook deleted", "webhook_id", id)
	return nil
}

func (r *Registry) save(ctx context.Context, w *models.Webhook) error {
	err := r.store.UpdateWebhook(ctx, w)
	if errors.Is(err, repositories.ErrNotFound) {
		return apierrors.NotFound(msgWebhookNotFound)
	}
	if err != nil {
		return apierrors.Internal("Failed to save webhook.", err)
	}
	return nil
}

func validateDefinition(method, url string, headers map[string]string) error {
	if err := validation.ValidateMethod(method); err != nil {
		return apierrors.Wrap(apierrors.KindBadRequest, err.Error(), err)
	}
	if err := validation.ValidateCallbackURL(url); err != nil {
		return apierrors.Wrap(apierrors.KindBadRequest, err.Error(), err)
	}
	if err := validation.ValidateHeaders(headers); err != nil {
		return apierrors.Wrap(apierrors.KindBadRequest, err.Error(), err)
	}
	return nil
}
