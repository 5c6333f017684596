package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

type RefreshOptions struct {
	// Silent suppresses refresh-started and refresh-finished events.
	Silent bool
}

type RefreshResult struct {
	UserID      string
	Previous    []Submission
	Submissions []Submission
}

func (s *Service) CreateSubmission(ctx context.Context, input CreateSubmissionInput) (submission Submission, err error) {
	startedAt := time.Now()
	fields := map[string]any{"challenge_id": input.ChallengeID}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_submission", err, fields)
	}()

	if err := input.Validate(); err != nil {
		return Submission{}, s.mapError(err)
	}
	if s.api == nil {
		return Submission{}, s.mapError(fmt.Errorf("core: submission api is required"))
	}
	state := s.currentState()
	if state == nil {
		return Submission{}, noSessionError("create_submission")
	}
	userID := state.session.UserID
	fields["user_id"] = userID

	placeholder, err := s.reservePlaceholder(ctx, state, input)
	if err != nil {
		return Submission{}, err
	}
	fields["temp_id"] = placeholder.ID()

	created, err := s.api.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID:         userID,
		ChallengeID:    input.ChallengeID,
		Type:           s.config.SubmissionType,
		Note:           input.Note,
		Media:          input.Media,
		IdempotencyKey: s.idempotencyKeyGen(),
	})
	if err != nil {
		s.releasePlaceholder(placeholder.ID())
		return Submission{}, s.mapError(err)
	}

	created.Ref = ConfirmedRef(created.ID())
	if created.UserID == "" {
		created.UserID = userID
	}
	if created.ChallengeID == "" {
		created.ChallengeID = input.ChallengeID
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = placeholder.CreatedAt
	}
	fields["submission_id"] = created.ID()

	if err := s.confirmPlaceholder(ctx, state, placeholder.ID(), created); err != nil {
		return Submission{}, err
	}
	if s.invalidator != nil {
		s.invalidator.Clear("/submissions")
	}
	s.events.Publish(ctx, Event{
		Type:       EventSubmissionCreated,
		UserID:     userID,
		Submission: &created,
	})
	return cloneSubmission(created), nil
}

// reservePlaceholder runs the resubmission policy and records the optimistic
// entry in one critical section, so two concurrent creates for the same
// challenge cannot both pass.
func (s *Service) reservePlaceholder(ctx context.Context, state *sessionState, input CreateSubmissionInput) (Submission, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	current, err := s.visibleSubmissions(ctx, state)
	if err != nil {
		return Submission{}, err
	}
	decision := CanSubmit(input.ChallengeID, insertionOrder(current))
	if !decision.Allowed {
		return Submission{}, decision.blockedError(input.ChallengeID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != state || state.ended {
		return Submission{}, SessionChangedError("create_submission")
	}
	s.tempSeq++
	placeholder := Submission{
		Ref:         PendingRef("temp_" + strconv.FormatUint(s.tempSeq, 10)),
		UserID:      state.session.UserID,
		ChallengeID: input.ChallengeID,
		Status:      SubmissionStatusPending,
		Note:        input.Note,
		CreatedAt:   s.now(),
	}
	s.placeholders = append([]Submission{placeholder}, s.placeholders...)
	return placeholder, nil
}

func (s *Service) releasePlaceholder(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeholders = removeByID(s.placeholders, tempID)
}

func (s *Service) confirmPlaceholder(ctx context.Context, state *sessionState, tempID string, created Submission) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if !s.isCurrent(state) {
		s.releasePlaceholder(tempID)
		return SessionChangedError("create_submission")
	}
	if err := s.mirror.Prepend(ctx, SubmissionsKey(state.session.UserID), created); err != nil {
		s.releasePlaceholder(tempID)
		return s.mapError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeholders = removeByID(s.placeholders, tempID)
	s.createSeq++
	s.recentCreates = append(s.recentCreates, recentCreate{seq: s.createSeq, submission: cloneSubmission(created)})
	return nil
}

// visibleSubmissions returns placeholders followed by the mirror.
func (s *Service) visibleSubmissions(ctx context.Context, state *sessionState) ([]Submission, error) {
	mirrored, err := s.mirror.Load(ctx, SubmissionsKey(state.session.UserID))
	if err != nil {
		return nil, s.mapError(err)
	}
	s.mu.Lock()
	pending := cloneSubmissions(s.placeholders)
	s.mu.Unlock()

	out := make([]Submission, 0, len(pending)+len(mirrored))
	out = append(out, pending...)
	out = append(out, mirrored...)
	return out, nil
}

// insertionOrder reverses a newest-first view so the most recently inserted
// entry comes last, which is where CanSubmit resolves CreatedAt ties.
func insertionOrder(visible []Submission) []Submission {
	out := make([]Submission, len(visible))
	for i, submission := range visible {
		out[len(visible)-1-i] = submission
	}
	return out
}

// Submissions returns every locally known submission of the current user,
// newest first.
func (s *Service) Submissions(ctx context.Context) ([]Submission, error) {
	state := s.currentState()
	if state == nil {
		return nil, noSessionError("submissions")
	}
	all, err := s.visibleSubmissions(ctx, state)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(all)
	return all, nil
}

func (s *Service) ListForChallenge(ctx context.Context, challengeID string) ([]Submission, error) {
	all, err := s.Submissions(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByChallenge(all, challengeID), nil
}

func (s *Service) CanSubmit(ctx context.Context, challengeID string) (Decision, error) {
	state := s.currentState()
	if state == nil {
		return Decision{}, noSessionError("can_submit")
	}
	all, err := s.visibleSubmissions(ctx, state)
	if err != nil {
		return Decision{}, err
	}
	return CanSubmit(challengeID, insertionOrder(all)), nil
}

// ServerSubmissions returns the server view of the current user's submissions,
// newest first, through the cached reader when one is configured. It does not
// touch the mirror. A response for a session that ended meanwhile is dropped.
func (s *Service) ServerSubmissions(ctx context.Context) (submissions []Submission, err error) {
	startedAt := time.Now()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "server_submissions", err, fields)
	}()

	state := s.currentState()
	if state == nil {
		return nil, noSessionError("server_submissions")
	}
	userID := state.session.UserID
	fields["user_id"] = userID
	req := ListSubmissionsRequest{UserID: userID, Type: s.config.SubmissionType}

	var fetched []Submission
	switch {
	case s.cachedReader != nil:
		fields["cached_reader"] = true
		fetched, err = s.cachedReader.CachedListSubmissions(ctx, req)
	case s.api != nil:
		fetched, err = s.api.ListSubmissions(ctx, req)
	default:
		err = fmt.Errorf("core: submission api is required")
	}
	if err != nil {
		return nil, s.mapError(err)
	}
	if !s.isCurrent(state) {
		return nil, SessionChangedError("server_submissions")
	}

	out := make([]Submission, 0, len(fetched))
	for _, submission := range fetched {
		submission.Ref = ConfirmedRef(submission.ID())
		if submission.UserID == "" {
			submission.UserID = userID
		}
		out = append(out, submission)
	}
	SortNewestFirst(out)
	fields["count"] = len(out)
	return out, nil
}

// RefreshSubmissions replaces the mirror with the server view. Calls are
// serialized; a response for a session that ended meanwhile is discarded.
func (s *Service) RefreshSubmissions(ctx context.Context, options RefreshOptions) (result RefreshResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{"silent": options.Silent}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh_submissions", err, fields)
	}()

	if s.api == nil {
		return RefreshResult{}, s.mapError(fmt.Errorf("core: submission api is required"))
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	state := s.currentState()
	if state == nil {
		return RefreshResult{}, noSessionError("refresh_submissions")
	}
	userID := state.session.UserID
	fields["user_id"] = userID

	if !options.Silent {
		s.events.Publish(ctx, Event{Type: EventRefreshStarted, UserID: userID})
		defer func() {
			s.events.Publish(ctx, Event{Type: EventRefreshFinished, UserID: userID, Err: err})
		}()
	}

	s.mu.Lock()
	fetchSeq := s.createSeq
	s.mu.Unlock()

	fetched, err := s.api.ListSubmissions(ctx, ListSubmissionsRequest{
		UserID: userID,
		Type:   s.config.SubmissionType,
	})
	if err != nil {
		return RefreshResult{}, s.mapError(err)
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if !s.isCurrent(state) {
		return RefreshResult{}, SessionChangedError("refresh_submissions")
	}

	normalized := make([]Submission, 0, len(fetched))
	for _, submission := range fetched {
		submission.Ref = ConfirmedRef(submission.ID())
		if submission.UserID == "" {
			submission.UserID = userID
		}
		normalized = append(normalized, submission)
	}
	SortNewestFirst(normalized)
	next := MergeSubmissions(normalized, s.createdSince(fetchSeq))

	key := SubmissionsKey(userID)
	previous, err := s.mirror.Load(ctx, key)
	if err != nil {
		return RefreshResult{}, s.mapError(err)
	}
	keepMirrorOrder(next, previous)
	if err := s.mirror.Replace(ctx, key, next); err != nil {
		return RefreshResult{}, s.mapError(err)
	}
	s.pruneRecentCreates(fetchSeq)
	fields["count"] = len(next)

	return RefreshResult{
		UserID:      userID,
		Previous:    previous,
		Submissions: cloneSubmissions(next),
	}, nil
}

func (s *Service) createdSince(seq uint64) []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, 0, len(s.recentCreates))
	for _, entry := range s.recentCreates {
		if entry.seq > seq {
			out = append(out, cloneSubmission(entry.submission))
		}
	}
	return out
}

// pruneRecentCreates drops creates the server view has now caught up with.
func (s *Service) pruneRecentCreates(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.recentCreates[:0]
	for _, entry := range s.recentCreates {
		if entry.seq > seq {
			kept = append(kept, entry)
		}
	}
	s.recentCreates = kept
}

// keepMirrorOrder sorts newest first and resolves CreatedAt ties by position
// in previous. Records previous does not hold are newer inserts and go first.
func keepMirrorOrder(next []Submission, previous []Submission) {
	rank := make(map[string]int, len(previous))
	for i, submission := range previous {
		rank[submission.ID()] = i
	}
	position := func(submission Submission) int {
		if i, ok := rank[submission.ID()]; ok {
			return i
		}
		return -1
	}
	sort.SliceStable(next, func(i, j int) bool {
		if !next[i].CreatedAt.Equal(next[j].CreatedAt) {
			return next[i].CreatedAt.After(next[j].CreatedAt)
		}
		return position(next[i]) < position(next[j])
	})
}

func removeByID(submissions []Submission, id string) []Submission {
	out := submissions[:0]
	for _, submission := range submissions {
		if submission.ID() == id {
			continue
		}
		out = append(out, submission)
	}
	return out
}
