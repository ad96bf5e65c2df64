package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/proctorix/examgate/internal/model"
	"github.com/rs/zerolog"
)

// AuthClient talks to the upstream authentication service directly, without
// the pipeline: login predates any credential, and refresh IS the pipeline's
// recovery path and must never recurse into it.
type AuthClient struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

// NewAuthClient creates the authentication collaborator client.
func NewAuthClient(baseURL string, timeout time.Duration, log zerolog.Logger) *AuthClient {
	return &AuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "auth_client").Logger(),
	}
}

// Login exchanges credentials for a token pair and the user summary.
func (c *AuthClient) Login(ctx context.Context, email, password string) (model.Credential, model.User, error) {
	payload, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login/", bytes.NewReader(payload))
	if err != nil {
		return model.Credential{}, model.User{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return model.Credential{}, model.User{}, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return model.Credential{}, model.User{}, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return model.Credential{}, model.User{}, ErrAuthRejected
	case resp.StatusCode != http.StatusOK:
		return model.Credential{}, model.User{}, &StatusError{StatusCode: resp.StatusCode}
	}

	var body struct {
		Access  string     `json:"access"`
		Refresh string     `json:"refresh"`
		User    model.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Credential{}, model.User{}, fmt.Errorf("decode login response: %w", err)
	}

	cred := model.Credential{
		AccessToken:  body.Access,
		RefreshToken: body.Refresh,
	}
	return cred, body.User, nil
}

// Refresh exchanges a refresh token for a new access token. The server may
// rotate the refresh token; when it does, the rotated value is returned.
// Satisfies token.RefreshFunc.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	payload, _ := json.Marshal(map[string]string{"refresh": refreshToken})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token/refresh/", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", &StatusError{StatusCode: resp.StatusCode}
	}

	var body struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("decode refresh response: %w", err)
	}
	if body.Access == "" {
		return "", "", fmt.Errorf("refresh response missing access token")
	}

	return body.Access, body.Refresh, nil
}
