package core

type DecisionReason string

const (
	DecisionAllowedFresh    DecisionReason = "allowed-fresh"
	DecisionAllowedResubmit DecisionReason = "allowed-resubmit"
	DecisionBlockedPending  DecisionReason = "blocked-pending"
	DecisionBlockedApproved DecisionReason = "blocked-approved"
)

type Decision struct {
	Allowed bool
	Reason  DecisionReason
	Latest  *Submission
}

// CanSubmit decides whether a new submission for challengeID is allowed given
// the user's submissions in insertion order, oldest first. Only the latest
// submission by CreatedAt matters; when several share the latest CreatedAt,
// the one positioned last in submissions wins.
func CanSubmit(challengeID string, submissions []Submission) Decision {
	var latest *Submission
	for i := range submissions {
		candidate := submissions[i]
		if candidate.ChallengeID != challengeID {
			continue
		}
		if latest == nil || !candidate.CreatedAt.Before(latest.CreatedAt) {
			picked := cloneSubmission(candidate)
			latest = &picked
		}
	}

	if latest == nil {
		return Decision{Allowed: true, Reason: DecisionAllowedFresh}
	}
	switch latest.Status {
	case SubmissionStatusApproved:
		return Decision{Allowed: false, Reason: DecisionBlockedApproved, Latest: latest}
	case SubmissionStatusRejected:
		return Decision{Allowed: true, Reason: DecisionAllowedResubmit, Latest: latest}
	default:
		return Decision{Allowed: false, Reason: DecisionBlockedPending, Latest: latest}
	}
}

func (d Decision) blockedError(challengeID string) error {
	if d.Allowed {
		return nil
	}
	textCode := ErrorBlockedPending
	message := "a submission for this challenge is awaiting review"
	if d.Reason == DecisionBlockedApproved {
		textCode = ErrorBlockedApproved
		message = "this challenge already has an approved submission"
	}
	err := ValidationError(message, textCode)
	meta := map[string]any{
		"challenge_id": challengeID,
		"reason":       string(d.Reason),
	}
	if d.Latest != nil {
		meta["latest_submission_id"] = d.Latest.ID()
	}
	return err.WithMetadata(meta)
}
