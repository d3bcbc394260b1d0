package webhooks

import (
	"encoding/json"

	"github.com/hookrelay/hookrelay/internal/apierrors"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/validation"
)

// Optional distinguishes a JSON field that was omitted from one that was sent.
// A field sent as null is Present with the zero Value.
type Optional[T any] struct {
	Value   T
	Present bool
}

// Some returns a present Optional holding v
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Present: true}
}

// UnmarshalJSON implements json.Unmarshaler
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Present = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// WebhookPatch is a partial update. A field overwrites the stored value only when it
// is present and non-empty, so a patch can never clear a field.
type WebhookPatch struct {
	Method  Optional[string]            `json:"method"`
	URL     Optional[string]            `json:"url"`
	Headers Optional[map[string]string] `json:"headers"`
	Body    Optional[string]            `json:"body"`

	// Callback and Target are accepted as aliases of URL, in that order of precedence
	Callback Optional[string] `json:"callback"`
	Target   Optional[string] `json:"target"`
}

func (p WebhookPatch) method() (string, bool) {
	m := validation.NormalizeMethod(p.Method.Value)
	return m, p.Method.Present && m != ""
}

func (p WebhookPatch) url() (string, bool) {
	if p.URL.Present && p.URL.Value != "" {
		return p.URL.Value, true
	}
	if p.Callback.Present && p.Callback.Value != "" {
		return p.Callback.Value, true
	}
	if p.Target.Present && p.Target.Value != "" {
		return p.Target.Value, true
	}
	return "", false
}

func (p WebhookPatch) headers() (map[string]string, bool) {
	return p.Headers.Value, p.Headers.Present && len(p.Headers.Value) > 0
}

func (p WebhookPatch) body() (string, bool) {
	return p.Body.Value, p.Body.Present && p.Body.Value != ""
}

// Validate checks the fields that would be applied
func (p WebhookPatch) Validate() error {
	if m, ok := p.method(); ok {
		if err := validation.ValidateMethod(m); err != nil {
			return apierrors.Wrap(apierrors.KindBadRequest, err.Error(), err)
		}
	}
	if u, ok := p.url(); ok {
		if err := validation.ValidateCallbackURL(u); err != nil {
			return apierrors.Wrap(apierrors.KindBadRequest, err.Error(), err)
		}
	}
	if h, ok := p.headers(); ok {
		if err := validation.ValidateHeaders(h); err != nil {
			return apierrors.Wrap(apierrors.KindBadRequest, err.Error(), err)
		}
	}
	return nil
}

// Apply overwrites the fields of w that the patch carries and reports whether
// anything was applied
func (p WebhookPatch) Apply(w *models.Webhook) bool {
	applied := false
	if m, ok := p.method(); ok {
		w.Method = m
		applied = true
	}
	if u, ok := p.url(); ok {
		w.URL = u
		applied = true
	}
	if h, ok := p.headers(); ok {
		w.Headers = copyHeaders(h)
		applied = true
	}
	if b, ok := p.body(); ok {
		w.Body = &b
		applied = true
	}
	return applied
}

func copyHeaders(h map[string]string) models.Headers {
	if h == nil {
		return nil
	}
	out := make(models.Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
