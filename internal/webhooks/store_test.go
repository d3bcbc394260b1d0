package webhooks

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/db/repositories"
)

var errStore = errors.New("store unavailable")

// memWebhookStore is an in-memory WebhookStore
type memWebhookStore struct {
	mu       sync.Mutex
	webhooks map[string]models.Webhook
	updates  int

	failCreate bool
	failGet    bool
	failUpdate bool
}

func newMemWebhookStore(seed ...models.Webhook) *memWebhookStore {
	s := &memWebhookStore{webhooks: map[string]models.Webhook{}}
	for _, w := range seed {
		s.webhooks[w.ID] = w
	}
	return s
}

func (s *memWebhookStore) CreateWebhook(_ context.Context, w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errStore
	}
	s.webhooks[w.ID] = *w
	return nil
}

func (s *memWebhookStore) GetWebhook(_ context.Context, id string) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errStore
	}
	w, ok := s.webhooks[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *memWebhookStore) ListWebhooksByUser(_ context.Context, userID string) ([]models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Webhook{}
	for _, w := range s.webhooks {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memWebhookStore) UpdateWebhook(_ context.Context, w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate {
		return errStore
	}
	if _, ok := s.webhooks[w.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.webhooks[w.ID] = *w
	s.updates++
	return nil
}

func (s *memWebhookStore) DeleteWebhook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.webhooks, id)
	return nil
}

func (s *memWebhookStore) stored(id string) (models.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	return w, ok
}

// memLogStore is an in-memory LogStore
type memLogStore struct {
	mu   sync.Mutex
	logs []models.WebhookLog

	failCreate bool
	lastLimit  int
}

func (s *memLogStore) CreateWebhookLog(_ context.Context, l *models.WebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errStore
	}
	s.logs = append(s.logs, *l)
	return nil
}

func (s *memLogStore) ListWebhookLogs(_ context.Context, webhookID string, limit int) ([]models.WebhookLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	out := []models.WebhookLog{}
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.logs[i].WebhookID == webhookID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

func (s *memLogStore) all() []models.WebhookLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WebhookLog(nil), s.logs...)
}

func strPtr(s string) *string { return &s }
