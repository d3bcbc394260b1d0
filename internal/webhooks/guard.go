package webhooks

import (
	"github.com/hookrelay/hookrelay/internal/apierrors"
	"github.com/hookrelay/hookrelay/internal/db/models"
)

const (
	msgWebhookNotFound = "Webhook not found."
	msgNotOwner        = "You are not the owner of this webhook."
)

// CheckOwner reports NotFound for a missing webhook and Forbidden when requesterID
// is not its owner. A missing webhook is never reported as Forbidden.
func CheckOwner(w *models.Webhook, requesterID string) error {
	if w == nil {
		return apierrors.NotFound(msgWebhookNotFound)
	}
	if !w.IsOwnedBy(requesterID) {
		return apierrors.Forbidden(msgNotOwner)
	}
	return nil
}
