package core

import (
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// NormalizeSubmissionStatus maps unknown or empty server values to pending.
func NormalizeSubmissionStatus(raw string) SubmissionStatus {
	switch SubmissionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case SubmissionStatusApproved:
		return SubmissionStatusApproved
	case SubmissionStatusRejected:
		return SubmissionStatusRejected
	default:
		return SubmissionStatusPending
	}
}

type RefKind string

const (
	RefPending   RefKind = "pending"
	RefConfirmed RefKind = "confirmed"
)

// Ref identifies a submission. A pending ref carries a local temporary id and
// lives only until the server answers; a confirmed ref carries the server id.
type Ref struct {
	Kind RefKind
	ID   string
}

func PendingRef(tempID string) Ref {
	return Ref{Kind: RefPending, ID: tempID}
}

func ConfirmedRef(serverID string) Ref {
	return Ref{Kind: RefConfirmed, ID: serverID}
}

func (r Ref) IsPending() bool {
	return r.Kind == RefPending
}

func (r Ref) IsConfirmed() bool {
	return r.Kind == RefConfirmed
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}

type Submission struct {
	Ref             Ref
	UserID          string
	ChallengeID     string
	Status          SubmissionStatus
	MediaRef        string
	Note            string
	ReviewerComment string
	PointsAwarded   *int
	CreatedAt       time.Time
}

func (s Submission) ID() string {
	return s.Ref.ID
}

// Reviewed reports whether the submission left the pending state.
func (s Submission) Reviewed() bool {
	return s.Status == SubmissionStatusApproved || s.Status == SubmissionStatusRejected
}

type Media struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (m Media) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Filename, validation.Required),
		validation.Field(&m.Data, validation.Required),
	)
}

type CreateSubmissionInput struct {
	ChallengeID string
	Note        string
	Media       Media
}

func (in CreateSubmissionInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.ChallengeID, validation.Required),
		validation.Field(&in.Note, validation.Length(0, 2000)),
		validation.Field(&in.Media),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid submission input").
			WithCode(400).
			WithTextCode(ErrorValidation)
	}
	return nil
}

// SortNewestFirst orders submissions by CreatedAt descending. Ties keep their
// relative order.
func SortNewestFirst(submissions []Submission) {
	sort.SliceStable(submissions, func(i, j int) bool {
		return submissions[i].CreatedAt.After(submissions[j].CreatedAt)
	})
}

// FilterByChallenge returns the submissions for challengeID preserving order.
func FilterByChallenge(submissions []Submission, challengeID string) []Submission {
	out := make([]Submission, 0, len(submissions))
	for _, submission := range submissions {
		if submission.ChallengeID == challengeID {
			out = append(out, submission)
		}
	}
	return out
}

// MergeSubmissions returns fetched with every confirmed local submission that
// is missing from it prepended. Used when a create lands while a refresh is
// reading an older server view.
func MergeSubmissions(fetched []Submission, local []Submission) []Submission {
	seen := make(map[string]struct{}, len(fetched))
	for _, submission := range fetched {
		seen[submission.ID()] = struct{}{}
	}
	merged := make([]Submission, 0, len(fetched)+len(local))
	for _, submission := range local {
		if !submission.Ref.IsConfirmed() {
			continue
		}
		if _, ok := seen[submission.ID()]; ok {
			continue
		}
		merged = append(merged, submission)
	}
	merged = append(merged, fetched...)
	SortNewestFirst(merged)
	return merged
}

func cloneSubmissions(submissions []Submission) []Submission {
	if len(submissions) == 0 {
		return []Submission{}
	}
	out := make([]Submission, len(submissions))
	for i, submission := range submissions {
		out[i] = cloneSubmission(submission)
	}
	return out
}

func cloneSubmission(submission Submission) Submission {
	if submission.PointsAwarded != nil {
		points := *submission.PointsAwarded
		submission.PointsAwarded = &points
	}
	return submission
}
