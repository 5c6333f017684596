package core

import (
	"context"
	"time"
)

// Session is the per-login context. Everything cached or mirrored for a user
// is scoped to the session that created it and discarded when it ends.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time
}

func (s Session) Active() bool {
	return s.ID != "" && s.UserID != ""
}

type sessionState struct {
	session Session
	ended   bool
}

// CurrentSession returns the active session, if any.
func (s *Service) CurrentSession() (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.ended {
		return Session{}, false
	}
	return s.session.session, true
}

func (s *Service) isCurrent(state *sessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state != nil && s.session == state && !state.ended
}

func (s *Service) currentState() *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.ended {
		return nil
	}
	return s.session
}

func (s *Service) startSession(ctx context.Context, userID string) Session {
	s.endSession(ctx, "replaced")

	state := &sessionState{session: Session{
		ID:        s.idempotencyKeyGen(),
		UserID:    userID,
		StartedAt: s.now(),
	}}
	s.mu.Lock()
	s.session = state
	s.placeholders = nil
	s.recentCreates = nil
	listeners := append([]SessionListener(nil), s.sessionListeners...)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener.OnSessionStart(ctx, state.session)
	}
	s.events.Publish(ctx, Event{Type: EventSessionStarted, UserID: userID})
	return state.session
}

// endSession swaps the session out atomically and then tears down everything
// scoped to it. Safe to call when no session is active.
func (s *Service) endSession(ctx context.Context, reason string) {
	s.mu.Lock()
	state := s.session
	if state == nil || state.ended {
		s.mu.Unlock()
		return
	}
	state.ended = true
	s.session = nil
	s.placeholders = nil
	s.recentCreates = nil
	listeners := append([]SessionListener(nil), s.sessionListeners...)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener.OnSessionEnd(ctx, state.session, reason)
	}

	userID := state.session.UserID
	for _, key := range []MirrorKey{SubmissionsKey(userID), SnapshotKey(userID)} {
		if err := s.mirror.Clear(ctx, key); err != nil {
			s.logWarn(ctx, "mirror clear failed", map[string]any{
				"user_id":   userID,
				"namespace": string(key.Namespace),
				"error":     err.Error(),
			})
		}
	}
	if s.invalidator != nil {
		s.invalidator.Clear("")
	}
	s.events.Publish(ctx, Event{Type: EventSessionEnded, UserID: userID, Reason: reason})
}

// AddSessionListener registers listener for future session transitions. If a
// session is already active the listener is started right away.
func (s *Service) AddSessionListener(ctx context.Context, listener SessionListener) {
	if s == nil || listener == nil {
		return
	}
	s.mu.Lock()
	s.sessionListeners = append(s.sessionListeners, listener)
	var active *Session
	if s.session != nil && !s.session.ended {
		current := s.session.session
		active = &current
	}
	s.mu.Unlock()
	if active != nil {
		listener.OnSessionStart(ctx, *active)
	}
}
