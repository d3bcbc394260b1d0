package webhooks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hookrelay/hookrelay/internal/apierrors"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededWebhook() models.Webhook {
	return models.Webhook{
		ID:      "wh-1",
		UserID:  "owner",
		Method:  "POST",
		URL:     "https://example.com/hook",
		Headers: models.Headers{"X-Token": "abc"},
		Body:    strPtr("payload"),
	}
}

func TestRegistry_Create(t *testing.T) {
	store := newMemWebhookStore()
	reg := NewRegistry(store)

	w, err := reg.Create(context.Background(), "owner", CreateInput{URL: "https://example.com/hook"})
	require.NoError(t, err)

	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "owner", w.UserID)
	assert.Equal(t, "GET", w.Method, "method defaults to GET")
	assert.Nil(t, w.Body)

	stored, ok := store.stored(w.ID)
	require.True(t, ok)
	assert.Equal(t, w.URL, stored.URL)
}

func TestRegistry_Create_NormalizesMethod(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore())

	w, err := reg.Create(context.Background(), "owner", CreateInput{Method: "post", URL: "http://localhost/x"})
	require.NoError(t, err)
	assert.Equal(t, "POST", w.Method)
}

func TestRegistry_Create_FreshIDs(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore())
	in := CreateInput{URL: "https://example.com"}

	a, err := reg.Create(context.Background(), "owner", in)
	require.NoError(t, err)
	b, err := reg.Create(context.Background(), "owner", in)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRegistry_Create_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing url", CreateInput{}},
		{"bad scheme", CreateInput{URL: "ftp://example.com"}},
		{"bad method", CreateInput{Method: "FETCH", URL: "https://example.com"}},
		{"bad header", CreateInput{URL: "https://example.com", Headers: map[string]string{"Bad Name": "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(newMemWebhookStore()).Create(context.Background(), "owner", tt.in)
			require.Error(t, err)
			assert.Equal(t, apierrors.KindBadRequest, apierrors.KindOf(err))
		})
	}
}

func TestRegistry_Create_StoreFailureIsInternal(t *testing.T) {
	store := newMemWebhookStore()
	store.failCreate = true

	_, err := NewRegistry(store).Create(context.Background(), "owner", CreateInput{URL: "https://example.com"})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindInternal, apierrors.KindOf(err))
	assert.Equal(t, "Failed to save webhook.", apierrors.Message(err))
	assert.ErrorIs(t, err, errStore)
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore(seededWebhook()))

	w, err := reg.Get(context.Background(), "wh-1")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "owner", w.UserID)

	missing, err := reg.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRegistry_List(t *testing.T) {
	other := seededWebhook()
	other.ID = "wh-2"
	other.UserID = "someone-else"
	reg := NewRegistry(newMemWebhookStore(seededWebhook(), other))

	list, err := reg.List(context.Background(), "owner")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wh-1", list[0].ID)

	empty, err := reg.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRegistry_Authorize(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore(seededWebhook()))

	w, err := reg.Authorize(context.Background(), "wh-1", "owner")
	require.NoError(t, err)
	assert.Equal(t, "wh-1", w.ID)

	_, err = reg.Authorize(context.Background(), "wh-1", "intruder")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindForbidden, apierrors.KindOf(err))
	assert.Equal(t, "You are not the owner of this webhook.", apierrors.Message(err))

	_, err = reg.Authorize(context.Background(), "missing", "intruder")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err), "unknown id is NotFound even for non-owners")
}

func TestRegistry_Authorize_StoreFailure(t *testing.T) {
	store := newMemWebhookStore(seededWebhook())
	store.failGet = true

	_, err := NewRegistry(store).Authorize(context.Background(), "wh-1", "owner")
	assert.Equal(t, apierrors.KindInternal, apierrors.KindOf(err))
}

func TestRegistry_Update_ReplacesWholesale(t *testing.T) {
	store := newMemWebhookStore(seededWebhook())
	reg := NewRegistry(store)

	w, err := reg.Update(context.Background(), "wh-1", UpdateInput{
		Method: "PUT",
		URL:    "https://example.org/new",
		Body:   strPtr(""),
	})
	require.NoError(t, err)

	assert.Equal(t, "PUT", w.Method)
	assert.Equal(t, "https://example.org/new", w.URL)
	assert.Nil(t, w.Headers, "omitted headers are cleared")
	require.NotNil(t, w.Body)
	assert.Equal(t, "", *w.Body, "update overwrites with an empty body")

	stored, _ := store.stored("wh-1")
	assert.Equal(t, "owner", stored.UserID, "owner is immutable")
	assert.Equal(t, "", *stored.Body)
}

func TestRegistry_Update_Errors(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore(seededWebhook()))

	_, err := reg.Update(context.Background(), "wh-1", UpdateInput{URL: "https://example.com"})
	assert.Equal(t, apierrors.KindBadRequest, apierrors.KindOf(err), "method is required")

	_, err = reg.Update(context.Background(), "wh-1", UpdateInput{Method: "GET"})
	assert.Equal(t, apierrors.KindBadRequest, apierrors.KindOf(err), "url is required")

	_, err = reg.Update(context.Background(), "missing", UpdateInput{Method: "GET", URL: "https://example.com"})
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestRegistry_Patch_EmptyValuesLeaveFieldsUnchanged(t *testing.T) {
	store := newMemWebhookStore(seededWebhook())
	reg := NewRegistry(store)

	var patch WebhookPatch
	require.NoError(t, json.Unmarshal([]byte(`{"method":"","url":"","headers":{},"body":""}`), &patch))

	w, err := reg.Patch(context.Background(), "wh-1", patch)
	require.NoError(t, err)

	before := seededWebhook()
	assert.Equal(t, before.Method, w.Method)
	assert.Equal(t, before.URL, w.URL)
	assert.Equal(t, before.Headers, w.Headers)
	assert.Equal(t, *before.Body, *w.Body)
	assert.Equal(t, 0, store.updates, "nothing applicable means no write")
}

func TestRegistry_Patch_NullNeverClears(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore(seededWebhook()))

	var patch WebhookPatch
	require.NoError(t, json.Unmarshal([]byte(`{"headers":null,"body":null}`), &patch))
	assert.True(t, patch.Body.Present)

	w, err := reg.Patch(context.Background(), "wh-1", patch)
	require.NoError(t, err)
	assert.Equal(t, models.Headers{"X-Token": "abc"}, w.Headers)
	require.NotNil(t, w.Body)
	assert.Equal(t, "payload", *w.Body)
}

func TestRegistry_Patch_OverwritesPresentFields(t *testing.T) {
	store := newMemWebhookStore(seededWebhook())
	reg := NewRegistry(store)

	w, err := reg.Patch(context.Background(), "wh-1", WebhookPatch{
		Method: Some("delete"),
		Body:   Some("new body"),
	})
	require.NoError(t, err)

	assert.Equal(t, "DELETE", w.Method)
	assert.Equal(t, "new body", *w.Body)
	assert.Equal(t, "https://example.com/hook", w.URL, "omitted url untouched")

	stored, _ := store.stored("wh-1")
	assert.Equal(t, "DELETE", stored.Method)
	assert.Equal(t, 1, store.updates)
}

func TestRegistry_Patch_CallbackAlias(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore(seededWebhook()))

	var patch WebhookPatch
	require.NoError(t, json.Unmarshal([]byte(`{"callback":"https://alias.example.com"}`), &patch))

	w, err := reg.Patch(context.Background(), "wh-1", patch)
	require.NoError(t, err)
	assert.Equal(t, "https://alias.example.com", w.URL)
}

func TestRegistry_Patch_AliasPrecedence(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore(seededWebhook()))

	var patch WebhookPatch
	require.NoError(t, json.Unmarshal([]byte(`{"target":"https://target.example.com","callback":"https://callback.example.com"}`), &patch))

	w, err := reg.Patch(context.Background(), "wh-1", patch)
	require.NoError(t, err)
	assert.Equal(t, "https://callback.example.com", w.URL, "callback outranks target")

	patch = WebhookPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"target":"https://target.example.com"}`), &patch))
	w, err = reg.Patch(context.Background(), "wh-1", patch)
	require.NoError(t, err)
	assert.Equal(t, "https://target.example.com", w.URL)
}

func TestRegistry_Patch_Errors(t *testing.T) {
	reg := NewRegistry(newMemWebhookStore(seededWebhook()))

	_, err := reg.Patch(context.Background(), "wh-1", WebhookPatch{URL: Some("not a url")})
	assert.Equal(t, apierrors.KindBadRequest, apierrors.KindOf(err))

	_, err = reg.Patch(context.Background(), "missing", WebhookPatch{Body: Some("x")})
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestRegistry_Delete(t *testing.T) {
	store := newMemWebhookStore(seededWebhook())
	reg := NewRegistry(store)

	require.NoError(t, reg.Delete(context.Background(), "wh-1"))
	_, ok := store.stored("wh-1")
	assert.False(t, ok)

	err := reg.Delete(context.Background(), "wh-1")
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestCheckOwner(t *testing.T) {
	w := seededWebhook()

	assert.NoError(t, CheckOwner(&w, "owner"))
	assert.Equal(t, apierrors.KindForbidden, apierrors.KindOf(CheckOwner(&w, "other")))
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(CheckOwner(nil, "owner")))
}

func TestOptional_UnmarshalJSON(t *testing.T) {
	var p WebhookPatch
	require.NoError(t, json.Unmarshal([]byte(`{"method":"GET","body":null}`), &p))

	assert.True(t, p.Method.Present)
	assert.Equal(t, "GET", p.Method.Value)
	assert.True(t, p.Body.Present)
	assert.Equal(t, "", p.Body.Value)
	assert.False(t, p.URL.Present)
	assert.False(t, p.Headers.Present)
}
