package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestHTTPError_UsesServerMessageOrStatus(t *testing.T) {
	err := HTTPError(http.StatusConflict, "duplicate submission", nil)
	if err.Message != "duplicate submission" {
		t.Fatalf("expected server message, got %q", err.Message)
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", HTTPStatus(err))
	}

	fallback := HTTPError(http.StatusServiceUnavailable, "", nil)
	if fallback.Message != "Service Unavailable" {
		t.Fatalf("expected status text fallback, got %q", fallback.Message)
	}
	if fallback.Metadata["status"] != http.StatusServiceUnavailable {
		t.Fatalf("expected status metadata, got %v", fallback.Metadata)
	}
}

func TestErrorClassifiers(t *testing.T) {
	network := fmt.Errorf("wrapped: %w", NetworkError(errors.New("dial tcp"), nil))
	if !IsNetworkError(network) || IsAuthError(network) {
		t.Fatalf("expected network classification")
	}
	auth := AuthError("", "", nil)
	if !IsAuthError(auth) || auth.TextCode != ErrorAuth || auth.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected auth error %+v", auth)
	}
	if HTTPStatus(auth) != 0 {
		t.Fatalf("expected auth error to carry no http status")
	}
	if !IsSessionChanged(SessionChangedError("op")) {
		t.Fatalf("expected session changed classification")
	}
	validation := ValidationError("bad", "", goerrors.FieldError{Field: "challenge_id", Message: "required"})
	if !IsValidationError(validation) || validation.TextCode != ErrorValidation {
		t.Fatalf("unexpected validation error %+v", validation)
	}
}

func TestServiceErrorMapper(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		textCode string
		code     int
	}{
		{name: "session changed", err: ErrSessionChanged, textCode: ErrorSessionChanged, code: http.StatusConflict},
		{name: "no session", err: ErrNoSession, textCode: ErrorNoSession, code: http.StatusUnauthorized},
		{name: "deadline", err: context.DeadlineExceeded, textCode: ErrorNetwork, code: http.StatusBadGateway},
		{name: "required", err: errors.New("core: user id is required"), textCode: ErrorValidation, code: http.StatusBadRequest},
		{name: "rich passthrough", err: goerrors.New("gone", goerrors.CategoryNotFound), textCode: ErrorNotFound, code: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := serviceErrorMapper(tc.err)
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.code {
				t.Fatalf("expected code %d, got %d", tc.code, mapped.Code)
			}
		})
	}
}

func TestDecisionBlockedError(t *testing.T) {
	decision := CanSubmit("c1", []Submission{{Ref: ConfirmedRef("s1"), ChallengeID: "c1", Status: SubmissionStatusApproved}})
	err := decision.blockedError("c1")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope")
	}
	if rich.TextCode != ErrorBlockedApproved {
		t.Fatalf("expected blocked approved text code, got %q", rich.TextCode)
	}
	if rich.Metadata["latest_submission_id"] != "s1" {
		t.Fatalf("expected latest submission metadata, got %v", rich.Metadata)
	}
	if CanSubmit("c1", nil).blockedError("c1") != nil {
		t.Fatalf("expected nil error for allowed decision")
	}
}
