package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type MirrorNamespace string

const (
	NamespaceSubmissions  MirrorNamespace = "submissions"
	NamespacePollSnapshot MirrorNamespace = "poll_snapshot"
)

// MirrorKey scopes locally persisted data to one namespace and one user.
type MirrorKey struct {
	Namespace MirrorNamespace
	UserID    string
}

func SubmissionsKey(userID string) MirrorKey {
	return MirrorKey{Namespace: NamespaceSubmissions, UserID: userID}
}

func SnapshotKey(userID string) MirrorKey {
	return MirrorKey{Namespace: NamespacePollSnapshot, UserID: userID}
}

func (k MirrorKey) Validate() error {
	if strings.TrimSpace(string(k.Namespace)) == "" {
		return fmt.Errorf("core: mirror namespace is required")
	}
	if strings.TrimSpace(k.UserID) == "" {
		return fmt.Errorf("core: mirror user id is required")
	}
	return nil
}

func (k MirrorKey) String() string {
	return string(k.Namespace) + "/" + k.UserID
}

type MemoryMirrorStore struct {
	mu      sync.RWMutex
	entries map[MirrorKey][]Submission
}

func NewMemoryMirrorStore() *MemoryMirrorStore {
	return &MemoryMirrorStore{entries: map[MirrorKey][]Submission{}}
}

func (s *MemoryMirrorStore) Load(_ context.Context, key MirrorKey) ([]Submission, error) {
	if s == nil {
		return nil, fmt.Errorf("core: mirror store is nil")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSubmissions(s.entries[key]), nil
}

func (s *MemoryMirrorStore) Replace(_ context.Context, key MirrorKey, submissions []Submission) error {
	if s == nil {
		return fmt.Errorf("core: mirror store is nil")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cloneSubmissions(submissions)
	return nil
}

func (s *MemoryMirrorStore) Prepend(_ context.Context, key MirrorKey, submission Submission) error {
	if s == nil {
		return fmt.Errorf("core: mirror store is nil")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.entries[key]
	next := make([]Submission, 0, len(current)+1)
	next = append(next, cloneSubmission(submission))
	for _, existing := range current {
		if existing.ID() == submission.ID() {
			continue
		}
		next = append(next, existing)
	}
	s.entries[key] = next
	return nil
}

func (s *MemoryMirrorStore) Clear(_ context.Context, key MirrorKey) error {
	if s == nil {
		return fmt.Errorf("core: mirror store is nil")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

var _ MirrorStore = (*MemoryMirrorStore)(nil)
