package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	IssuedAt     time.Time
}

func (c Credential) Empty() bool {
	return strings.TrimSpace(c.AccessToken) == ""
}

func (c Credential) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("core: credential user id is required")
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return fmt.Errorf("core: credential access token is required")
	}
	return nil
}

func cloneCredential(c Credential) Credential {
	if c.ExpiresAt != nil {
		expiresAt := *c.ExpiresAt
		c.ExpiresAt = &expiresAt
	}
	return c
}

type MemoryCredentialStore struct {
	mu          sync.RWMutex
	credentials map[string]Credential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{credentials: map[string]Credential{}}
}

func (s *MemoryCredentialStore) Save(_ context.Context, credential Credential) error {
	if s == nil {
		return fmt.Errorf("core: credential store is nil")
	}
	if err := credential.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[credential.UserID] = cloneCredential(credential)
	return nil
}

func (s *MemoryCredentialStore) Load(_ context.Context, userID string) (Credential, error) {
	if s == nil {
		return Credential{}, fmt.Errorf("core: credential store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	credential, ok := s.credentials[strings.TrimSpace(userID)]
	if !ok {
		return Credential{}, fmt.Errorf("core: credential for user %q not found", userID)
	}
	return cloneCredential(credential), nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, userID string) error {
	if s == nil {
		return fmt.Errorf("core: credential store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, strings.TrimSpace(userID))
	return nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
