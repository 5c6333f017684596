package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-submissions/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type mirrorEntryRecord struct {
	bun.BaseModel `bun:"table:submission_mirror_entries,alias:sme"`

	ID              string    `bun:"id,pk"`
	Namespace       string    `bun:"namespace,notnull"`
	UserID          string    `bun:"user_id,notnull"`
	Position        int       `bun:"position,notnull"`
	SubmissionID    string    `bun:"submission_id,notnull"`
	RefKind         string    `bun:"ref_kind,notnull"`
	ChallengeID     string    `bun:"challenge_id,notnull"`
	Status          string    `bun:"status,notnull"`
	MediaRef        string    `bun:"media_ref,notnull"`
	Note            string    `bun:"note,notnull"`
	ReviewerComment string    `bun:"reviewer_comment,notnull"`
	PointsAwarded   *int      `bun:"points_awarded"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	SyncedAt        time.Time `bun:"synced_at,nullzero,notnull,default:current_timestamp"`
}

func newMirrorEntryRecord(key core.MirrorKey, position int, submission core.Submission, syncedAt time.Time) *mirrorEntryRecord {
	kind := submission.Ref.Kind
	if kind == "" {
		kind = core.RefConfirmed
	}
	var points *int
	if submission.PointsAwarded != nil {
		value := *submission.PointsAwarded
		points = &value
	}
	return &mirrorEntryRecord{
		ID:              uuid.NewString(),
		Namespace:       string(key.Namespace),
		UserID:          strings.TrimSpace(key.UserID),
		Position:        position,
		SubmissionID:    submission.ID(),
		RefKind:         string(kind),
		ChallengeID:     submission.ChallengeID,
		Status:          string(core.NormalizeSubmissionStatus(string(submission.Status))),
		MediaRef:        submission.MediaRef,
		Note:            submission.Note,
		ReviewerComment: submission.ReviewerComment,
		PointsAwarded:   points,
		CreatedAt:       submission.CreatedAt.UTC(),
		SyncedAt:        syncedAt,
	}
}

func (r *mirrorEntryRecord) toDomain() core.Submission {
	ref := core.ConfirmedRef(r.SubmissionID)
	if core.RefKind(r.RefKind) == core.RefPending {
		ref = core.PendingRef(r.SubmissionID)
	}
	var points *int
	if r.PointsAwarded != nil {
		value := *r.PointsAwarded
		points = &value
	}
	return core.Submission{
		Ref:             ref,
		UserID:          r.UserID,
		ChallengeID:     r.ChallengeID,
		Status:          core.NormalizeSubmissionStatus(r.Status),
		MediaRef:        r.MediaRef,
		Note:            r.Note,
		ReviewerComment: r.ReviewerComment,
		PointsAwarded:   points,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:session_credentials,alias:sc"`

	ID           string     `bun:"id,pk"`
	UserID       string     `bun:"user_id,notnull"`
	AccessToken  string     `bun:"access_token,notnull"`
	RefreshToken string     `bun:"refresh_token,notnull"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero"`
	IssuedAt     time.Time  `bun:"issued_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newCredentialRecord(credential core.Credential, now time.Time) *credentialRecord {
	issuedAt := credential.IssuedAt.UTC()
	if credential.IssuedAt.IsZero() {
		issuedAt = now
	}
	return &credentialRecord{
		ID:           uuid.NewString(),
		UserID:       strings.TrimSpace(credential.UserID),
		AccessToken:  credential.AccessToken,
		RefreshToken: credential.RefreshToken,
		ExpiresAt:    cloneTimePointer(credential.ExpiresAt),
		IssuedAt:     issuedAt,
		UpdatedAt:    now,
	}
}

func (r *credentialRecord) toDomain() core.Credential {
	return core.Credential{
		UserID:       r.UserID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    cloneTimePointer(r.ExpiresAt),
		IssuedAt:     r.IssuedAt.UTC(),
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
