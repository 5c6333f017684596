package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-submissions/core"
)

const (
	loginEndpoint    = "/auth/login"
	registerEndpoint = "/auth/register"
	refreshEndpoint  = "/auth/refresh"
)

type tokenPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	UserID       string `json:"userId"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (p tokenPayload) toCredential(now time.Time, fallbackUserID string) core.Credential {
	userID := strings.TrimSpace(p.User.ID)
	if userID == "" {
		userID = strings.TrimSpace(p.UserID)
	}
	if userID == "" {
		userID = fallbackUserID
	}
	credential := core.Credential{
		UserID:       userID,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		IssuedAt:     now,
	}
	if p.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(p.ExpiresIn) * time.Second)
		credential.ExpiresAt = &expiresAt
	}
	return credential
}

// AuthClient speaks the authentication endpoints. Every call goes out without
// a credential header and never triggers the refresh cycle.
type AuthClient struct {
	client *Client
}

func NewAuthClient(client *Client) *AuthClient {
	return &AuthClient{client: client}
}

func (a *AuthClient) Login(ctx context.Context, input core.LoginInput) (core.Credential, error) {
	return a.exchange(ctx, loginEndpoint, map[string]string{
		"email":    input.Email,
		"password": input.Password,
	}, "")
}

func (a *AuthClient) Register(ctx context.Context, input core.RegisterInput) (core.Credential, error) {
	return a.exchange(ctx, registerEndpoint, map[string]string{
		"name":     input.Name,
		"email":    input.Email,
		"password": input.Password,
	}, "")
}

func (a *AuthClient) Refresh(ctx context.Context, current core.Credential) (core.Credential, error) {
	refreshed, err := a.exchange(ctx, refreshEndpoint, map[string]string{
		"refreshToken": current.RefreshToken,
	}, current.UserID)
	if err != nil {
		return core.Credential{}, err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = current.RefreshToken
	}
	return refreshed, nil
}

func (a *AuthClient) exchange(ctx context.Context, endpoint string, body map[string]string, fallbackUserID string) (core.Credential, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return core.Credential{}, err
	}
	var payload tokenPayload
	err = a.client.JSON(ctx, endpoint, RequestOptions{
		Method:      http.MethodPost,
		Body:        encoded,
		ContentType: "application/json",
		SkipAuth:    true,
		NoAuthRetry: true,
	}, &payload)
	if err != nil {
		return core.Credential{}, err
	}
	credential := payload.toCredential(a.client.now().UTC(), fallbackUserID)
	if err := credential.Validate(); err != nil {
		return core.Credential{}, core.HTTPError(http.StatusBadGateway, endpoint+": "+err.Error(), nil)
	}
	return credential, nil
}
