package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-submissions/core"
)

const submissionsEndpoint = "/submissions"

type submissionPayload struct {
	ID              string `json:"id"`
	UserID          string `json:"userId"`
	ChallengeID     string `json:"challengeId"`
	Status          string `json:"status"`
	MediaURL        string `json:"mediaUrl"`
	Note            string `json:"note"`
	ReviewerComment string `json:"reviewComment"`
	PointsAwarded   *int   `json:"pointsAwarded"`
	CreatedAt       string `json:"createdAt"`
}

func (p submissionPayload) toSubmission() (core.Submission, error) {
	if strings.TrimSpace(p.ID) == "" {
		return core.Submission{}, fmt.Errorf("transport: submission id is missing")
	}
	createdAt, err := parseTimestamp(p.CreatedAt)
	if err != nil {
		return core.Submission{}, fmt.Errorf("transport: submission %s: %w", p.ID, err)
	}
	return core.Submission{
		Ref:             core.ConfirmedRef(p.ID),
		UserID:          p.UserID,
		ChallengeID:     p.ChallengeID,
		Status:          core.NormalizeSubmissionStatus(p.Status),
		MediaRef:        p.MediaURL,
		Note:            p.Note,
		ReviewerComment: p.ReviewerComment,
		PointsAwarded:   p.PointsAwarded,
		CreatedAt:       createdAt,
	}, nil
}

// SubmissionsClient speaks the submissions REST endpoints.
type SubmissionsClient struct {
	client  *Client
	listTTL time.Duration
}

func NewSubmissionsClient(client *Client, listTTL time.Duration) *SubmissionsClient {
	return &SubmissionsClient{client: client, listTTL: listTTL}
}

// ListSubmissions always reads through to the server; reconciliation depends
// on seeing the current review status.
func (s *SubmissionsClient) ListSubmissions(ctx context.Context, req core.ListSubmissionsRequest) ([]core.Submission, error) {
	query := map[string]string{"userId": req.UserID}
	if req.Type != "" {
		query["type"] = req.Type
	}
	response, err := s.client.Request(ctx, submissionsEndpoint, RequestOptions{
		Method: http.MethodGet,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	return decodeSubmissionList(response.Body)
}

// CachedListSubmissions serves the list from the response cache when fresh.
func (s *SubmissionsClient) CachedListSubmissions(ctx context.Context, req core.ListSubmissionsRequest) ([]core.Submission, error) {
	query := map[string]string{"userId": req.UserID}
	if req.Type != "" {
		query["type"] = req.Type
	}
	response, err := s.client.Request(ctx, submissionsEndpoint, RequestOptions{
		Method:   http.MethodGet,
		Query:    query,
		Cache:    true,
		CacheTTL: s.listTTL,
	})
	if err != nil {
		return nil, err
	}
	return decodeSubmissionList(response.Body)
}

func (s *SubmissionsClient) CreateSubmission(ctx context.Context, req core.CreateSubmissionRequest) (core.Submission, error) {
	body, contentType, err := encodeSubmissionForm(req)
	if err != nil {
		return core.Submission{}, transportWrapError(err, goerrors.CategoryBadInput, "transport: encode submission form", http.StatusBadRequest, nil)
	}
	response, err := s.client.Request(ctx, submissionsEndpoint, RequestOptions{
		Method:      http.MethodPost,
		Body:        body,
		ContentType: contentType,
		Idempotency: req.IdempotencyKey,
	})
	if err != nil {
		return core.Submission{}, err
	}
	s.client.InvalidateCache(submissionsEndpoint)

	payload, err := decodeSubmission(response.Body)
	if err != nil {
		return core.Submission{}, err
	}
	return payload, nil
}

func encodeSubmissionForm(req core.CreateSubmissionRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"userId", req.UserID},
		{"challengeId", req.ChallengeID},
		{"type", req.Type},
		{"note", req.Note},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}

	contentType := req.Media.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(req.Media.Data)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.Media.Filename))
	header.Set(HeaderContentType, contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Media.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func decodeSubmissionList(body []byte) ([]core.Submission, error) {
	var payloads []submissionPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		var wrapped struct {
			Submissions []submissionPayload `json:"submissions"`
			Data        []submissionPayload `json:"data"`
		}
		if wrapErr := json.Unmarshal(body, &wrapped); wrapErr != nil {
			return nil, decodeError("list submissions", err)
		}
		payloads = wrapped.Submissions
		if payloads == nil {
			payloads = wrapped.Data
		}
	}
	out := make([]core.Submission, 0, len(payloads))
	for _, payload := range payloads {
		submission, err := payload.toSubmission()
		if err != nil {
			return nil, decodeError("list submissions", err)
		}
		out = append(out, submission)
	}
	return out, nil
}

func decodeSubmission(body []byte) (core.Submission, error) {
	var envelope struct {
		Submission *submissionPayload `json:"submission"`
		Data       *submissionPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.Submission{}, decodeError("create submission", err)
	}
	payload := envelope.Submission
	if payload == nil {
		payload = envelope.Data
	}
	if payload == nil {
		var direct submissionPayload
		if err := json.Unmarshal(body, &direct); err != nil {
			return core.Submission{}, decodeError("create submission", err)
		}
		payload = &direct
	}
	submission, err := payload.toSubmission()
	if err != nil {
		return core.Submission{}, decodeError("create submission", err)
	}
	return submission, nil
}

func decodeError(operation string, err error) error {
	return core.HTTPError(http.StatusBadGateway, fmt.Sprintf("%s: unexpected response: %v", operation, err), nil)
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid createdAt %q", raw)
}

var _ core.SubmissionAPI = (*SubmissionsClient)(nil)
