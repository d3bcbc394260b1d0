package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hookrelay/hookrelay/internal/auth"
	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/crypto"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/db/repositories"
	"github.com/hookrelay/hookrelay/internal/webhooks"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// In-memory stores
// ---------------------------------------------------------------------------

type memUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]models.User{}}
}

func (s *memUsers) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return repositories.ErrUsernameTaken
		}
	}
	u.ID = uuid.New().String()
	u.CreatedAt = time.Now()
	s.users[u.ID] = *u
	return nil
}

func (s *memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]models.AccessToken
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[string]models.AccessToken{}}
}

func (s *memTokens) CreateAccessToken(_ context.Context, t *models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.ID] = *t
	return nil
}

func (s *memTokens) GetAccessToken(_ context.Context, id string) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *memTokens) RevokeAccessToken(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	s.tokens[id] = t
	return true, nil
}

func (s *memTokens) get(id string) models.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[id]
}

type memWebhooks struct {
	mu       sync.Mutex
	webhooks map[string]models.Webhook
}

func (s *memWebhooks) CreateWebhook(_ context.Context, w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	w.CreatedAt, w.UpdatedAt = now, now
	s.webhooks[w.ID] = *w
	return nil
}

func (s *memWebhooks) GetWebhook(_ context.Context, id string) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *memWebhooks) ListWebhooksByUser(_ context.Context, userID string) ([]models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Webhook
	for _, w := range s.webhooks {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memWebhooks) UpdateWebhook(_ context.Context, w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[w.ID]; !ok {
		return repositories.ErrNotFound
	}
	w.UpdatedAt = time.Now()
	s.webhooks[w.ID] = *w
	return nil
}

func (s *memWebhooks) DeleteWebhook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.webhooks, id)
	return nil
}

func (s *memWebhooks) put(w models.Webhook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[w.ID] = w
}

func (s *memWebhooks) get(id string) (models.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	return w, ok
}

type memLogs struct {
	mu   sync.Mutex
	logs []models.WebhookLog
}

func (s *memLogs) CreateWebhookLog(_ context.Context, l *models.WebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *l)
	return nil
}

func (s *memLogs) ListWebhookLogs(_ context.Context, webhookID string, limit int) ([]models.WebhookLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WebhookLog
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.logs[i].WebhookID == webhookID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

func (s *memLogs) all() []models.WebhookLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WebhookLog(nil), s.logs...)
}

// ---------------------------------------------------------------------------
// Test environment
// ---------------------------------------------------------------------------

type testEnv struct {
	svc      *Services
	users    *memUsers
	tokens   *memTokens
	webhooks *memWebhooks
	logs     *memLogs
	router   *gin.Engine
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.BcryptCost = bcrypt.MinCost
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithConfig(t, testConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cipher, err := crypto.NewTokenCipher(key)
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}

	env := &testEnv{
		users:    newMemUsers(),
		tokens:   newMemTokens(),
		webhooks: &memWebhooks{webhooks: map[string]models.Webhook{}},
		logs:     &memLogs{},
	}

	validator := auth.NewValidator(env.tokens)
	issuer := auth.NewIssuer(env.tokens, env.users, cipher)
	issuer.OnRevoke(validator.Invalidate)

	env.svc = &Services{
		Users:      env.users,
		Issuer:     issuer,
		Validator:  validator,
		Registry:   webhooks.NewRegistry(env.webhooks),
		Dispatcher: webhooks.NewDispatcher(env.logs),
	}
	bg := &BackgroundServices{}
	t.Cleanup(bg.Shutdown)
	env.router = newEngine(cfg, env.svc, bg)
	return env
}

// createUser stores a user with password "secret123"
func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword("secret123", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &models.User{Username: username, PasswordHash: hash}
	if err := e.users.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

// token issues a credential for user with scope
func (e *testEnv) token(t *testing.T, user *models.User, scope string) *auth.Credential {
	t.Helper()
	cred, err := e.svc.Issuer.Issue(context.Background(), user, scope, auth.RequestContext{Host: "example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return cred
}

// seedWebhook stores a webhook owned by ownerID
func (e *testEnv) seedWebhook(id, ownerID, url string) {
	e.webhooks.put(models.Webhook{
		ID:      id,
		UserID:  ownerID,
		Method:  "GET",
		URL:     url,
		Headers: models.Headers{"X-Original": "1"},
		Body:    strPtr("original body"),
	})
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("body parse error: %v (%s)", err, w.Body.String())
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	decodeBody(t, w, &body)
	msg, _ := body["error"].(string)
	return msg
}

func strPtr(s string) *string { return &s }

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (%s)", w.Code, want, w.Body.String())
	}
}
