package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/hookrelay/hookrelay/internal/auth"
	"github.com/hookrelay/hookrelay/internal/db/models"
)

func TestRegisterHandler_Success(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice",
		"password": "secret123",
	})
	assertStatus(t, w, http.StatusCreated)

	var profile models.UserProfile
	decodeBody(t, w, &profile)
	if profile.Username != "alice" || profile.ID == "" {
		t.Errorf("profile = %+v, want alice with an id", profile)
	}

	stored, _ := env.users.GetUserByUsername(context.Background(), "alice")
	if stored == nil {
		t.Fatal("user was not stored")
	}
	if stored.PasswordHash == "secret123" || !auth.CheckPassword("secret123", stored.PasswordHash) {
		t.Error("password must be stored as a bcrypt hash")
	}
	if strings.Contains(w.Body.String(), "password_hash") {
		t.Error("response must not expose the password hash")
	}
}

func TestRegisterHandler_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    interface{}
		wantMsg string
	}{
		{"missing password", map[string]string{"username": "bob"}, "Invalid request."},
		{"missing username", map[string]string{"password": "secret123"}, "Invalid request."},
		{"malformed json", `{"username":`, "Invalid request."},
		{"duplicate", map[string]string{"username": "alice", "password": "other"}, "Username already taken."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.createUser(t, "alice")

			w := env.do(http.MethodPost, "/auth/register", "", tt.body)
			assertStatus(t, w, http.StatusBadRequest)
			if got := errorMessage(t, w); got != tt.wantMsg {
				t.Errorf("error = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestCurrentUserHandler(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	cred := env.token(t, alice, "")

	w := env.do(http.MethodGet, "/auth/user", cred.AccessToken, nil)
	assertStatus(t, w, http.StatusOK)

	var profile models.UserProfile
	decodeBody(t, w, &profile)
	if profile.ID != alice.ID || profile.Username != "alice" {
		t.Errorf("profile = %+v, want %s/alice", profile, alice.ID)
	}
}

func TestCurrentUserHandler_UserGone(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	cred := env.token(t, alice, "read:webhooks")

	env.users.mu.Lock()
	delete(env.users.users, alice.ID)
	env.users.mu.Unlock()

	w := env.do(http.MethodGet, "/auth/user", cred.AccessToken, nil)
	assertStatus(t, w, http.StatusNotFound)
	if got := errorMessage(t, w); got != "User not found." {
		t.Errorf("error = %q, want User not found.", got)
	}
}

func TestCurrentUserHandler_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/auth/user", "", nil)
	assertStatus(t, w, http.StatusUnauthorized)
}
