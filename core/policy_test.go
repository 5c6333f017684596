package core

import (
	"testing"
	"time"
)

func submissionAt(id, challengeID string, status SubmissionStatus, minute int) Submission {
	return Submission{
		Ref:         ConfirmedRef(id),
		UserID:      "u1",
		ChallengeID: challengeID,
		Status:      status,
		CreatedAt:   time.Date(2026, 3, 1, 10, minute, 0, 0, time.UTC),
	}
}

func TestCanSubmit_StateMachine(t *testing.T) {
	cases := []struct {
		name        string
		submissions []Submission
		allowed     bool
		reason      DecisionReason
	}{
		{
			name:    "no history",
			allowed: true,
			reason:  DecisionAllowedFresh,
		},
		{
			name: "other challenge only",
			submissions: []Submission{
				submissionAt("s1", "c2", SubmissionStatusApproved, 1),
			},
			allowed: true,
			reason:  DecisionAllowedFresh,
		},
		{
			name: "latest pending",
			submissions: []Submission{
				submissionAt("s2", "c1", SubmissionStatusPending, 2),
				submissionAt("s1", "c1", SubmissionStatusRejected, 1),
			},
			reason: DecisionBlockedPending,
		},
		{
			name: "latest approved",
			submissions: []Submission{
				submissionAt("s2", "c1", SubmissionStatusApproved, 2),
				submissionAt("s1", "c1", SubmissionStatusRejected, 1),
			},
			reason: DecisionBlockedApproved,
		},
		{
			name: "latest rejected",
			submissions: []Submission{
				submissionAt("s1", "c1", SubmissionStatusRejected, 1),
			},
			allowed: true,
			reason:  DecisionAllowedResubmit,
		},
		{
			name: "latest chosen by created at not position",
			submissions: []Submission{
				submissionAt("s1", "c1", SubmissionStatusRejected, 1),
				submissionAt("s3", "c1", SubmissionStatusRejected, 5),
				submissionAt("s2", "c1", SubmissionStatusPending, 3),
			},
			allowed: true,
			reason:  DecisionAllowedResubmit,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := CanSubmit("c1", tc.submissions)
			if decision.Allowed != tc.allowed {
				t.Fatalf("expected allowed=%v, got %v", tc.allowed, decision.Allowed)
			}
			if decision.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, decision.Reason)
			}
		})
	}
}

func TestCanSubmit_TieGoesToLastPosition(t *testing.T) {
	submissions := []Submission{
		submissionAt("s1", "c1", SubmissionStatusPending, 4),
		submissionAt("s2", "c1", SubmissionStatusRejected, 4),
	}
	decision := CanSubmit("c1", submissions)
	if decision.Reason != DecisionAllowedResubmit {
		t.Fatalf("expected tie to resolve to the last entry, got %q", decision.Reason)
	}
	if decision.Latest == nil || decision.Latest.ID() != "s2" {
		t.Fatalf("expected latest s2, got %+v", decision.Latest)
	}

	reversed := []Submission{submissions[1], submissions[0]}
	if got := CanSubmit("c1", reversed).Reason; got != DecisionBlockedPending {
		t.Fatalf("expected reversed order to pick pending, got %q", got)
	}
}

func TestCanSubmit_LatestIsCopy(t *testing.T) {
	points := 10
	submissions := []Submission{submissionAt("s1", "c1", SubmissionStatusApproved, 1)}
	submissions[0].PointsAwarded = &points

	decision := CanSubmit("c1", submissions)
	*decision.Latest.PointsAwarded = 99
	if points != 10 {
		t.Fatalf("expected decision not to alias input, got points=%d", points)
	}
}

func TestNormalizeSubmissionStatus(t *testing.T) {
	cases := map[string]SubmissionStatus{
		"approved":  SubmissionStatusApproved,
		" REJECTED": SubmissionStatusRejected,
		"pending":   SubmissionStatusPending,
		"":          SubmissionStatusPending,
		"in_review": SubmissionStatusPending,
	}
	for raw, want := range cases {
		if got := NormalizeSubmissionStatus(raw); got != want {
			t.Fatalf("normalize %q: expected %q, got %q", raw, want, got)
		}
	}
}

func TestMergeSubmissions_KeepsLocalConfirmedOnly(t *testing.T) {
	fetched := []Submission{submissionAt("s1", "c1", SubmissionStatusRejected, 1)}
	local := []Submission{
		submissionAt("s2", "c1", SubmissionStatusPending, 3),
		{Ref: PendingRef("temp_1"), ChallengeID: "c1", CreatedAt: time.Date(2026, 3, 1, 10, 4, 0, 0, time.UTC)},
		submissionAt("s1", "c1", SubmissionStatusPending, 1),
	}
	merged := MergeSubmissions(fetched, local)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged submissions, got %d", len(merged))
	}
	if merged[0].ID() != "s2" || merged[1].ID() != "s1" {
		t.Fatalf("unexpected merge order: %s, %s", merged[0].ID(), merged[1].ID())
	}
	if merged[1].Status != SubmissionStatusRejected {
		t.Fatalf("expected server copy of s1 to win, got %q", merged[1].Status)
	}
}
