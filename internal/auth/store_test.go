package auth

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hookrelay/hookrelay/internal/crypto"
	"github.com/hookrelay/hookrelay/internal/db/models"
)

// memTokenStore is an in-memory TokenStore for tests
type memTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]models.AccessToken
	lookups int
	failGet error
	failPut error
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[string]models.AccessToken)}
}

func (s *memTokenStore) CreateAccessToken(_ context.Context, token *models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return s.failPut
	}
	if _, exists := s.tokens[token.ID]; exists {
		return errors.New("duplicate key")
	}
	s.tokens[token.ID] = *token
	return nil
}

func (s *memTokenStore) GetAccessToken(_ context.Context, id string) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.failGet != nil {
		return nil, s.failGet
	}
	tok, ok := s.tokens[id]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (s *memTokenStore) RevokeAccessToken(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok || tok.RevokedAt != nil {
		return false, nil
	}
	tok.RevokedAt = &at
	s.tokens[id] = tok
	return true, nil
}

func (s *memTokenStore) get(id string) models.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[id]
}

func (s *memTokenStore) set(tok models.AccessToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.ID] = tok
}

func (s *memTokenStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// memUsers is an in-memory UserLookup for tests
type memUsers map[string]*models.User

func (u memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return u[id], nil
}

var testUser = &models.User{ID: "user-alice", Username: "alice"}

func newTestCipher(t *testing.T) *crypto.TokenCipher {
	t.Helper()
	tc, err := crypto.NewTokenCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("NewTokenCipher() error: %v", err)
	}
	return tc
}

func newTestIssuer(t *testing.T) (*Issuer, *memTokenStore) {
	t.Helper()
	store := newMemTokenStore()
	return NewIssuer(store, memUsers{testUser.ID: testUser}, newTestCipher(t)), store
}

var testRequest = RequestContext{Host: "relay.test", ClientIP: "203.0.113.7"}
