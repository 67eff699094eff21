package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"story-client/internal/interfaces"
	"story-client/internal/models"

	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.AuthClient = (*AuthClient)(nil)

// AuthClient is the thin HTTP wrapper over the external identity provider.
// Only the two lifecycle endpoints the session provider needs are covered.
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAuthClient creates a new client for the auth endpoints.
func NewAuthClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*AuthClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL for auth service: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("AuthClient"),
	}, nil
}

type verifyTokenResponse struct {
	Success bool `json:"success"`
	Valid   bool `json:"valid"`
}

// VerifyToken asks the identity provider whether the access token is still
// accepted. A definitive "no" is not an error; transport failures are.
func (c *AuthClient) VerifyToken(ctx context.Context, token string) (bool, error) {
	var resp verifyTokenResponse
	err := c.post(ctx, "/auth/verify-token", map[string]string{"token": token}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

type refreshTokenResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Message      string `json:"message,omitempty"`
}

// RefreshToken exchanges a refresh token for a fresh credential pair.
// An invalid or expired refresh token comes back as ErrSessionExpired: the
// caller must force a full sign-out.
func (c *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (interfaces.TokenPair, error) {
	var resp refreshTokenResponse
	err := c.post(ctx, "/auth/refresh-token", map[string]string{"refresh_token": refreshToken}, &resp)
	if err != nil {
		return interfaces.TokenPair{}, err
	}
	if !resp.Success || resp.AccessToken == "" {
		c.logger.Warn("Refresh token rejected", zap.String("message", resp.Message))
		return interfaces.TokenPair{}, models.ErrSessionExpired
	}
	return interfaces.TokenPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

func (c *AuthClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	requestURL := c.baseURL + path
	log := c.logger.With(zap.String("url", requestURL))

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("internal error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("internal error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Auth request failed", zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read auth response: %v", models.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Идентификационный сервис окончательно отверг учетные данные
		return models.ErrSessionExpired
	case resp.StatusCode >= 400:
		log.Warn("Auth service returned error status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: auth status %d", models.ErrServer, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		log.Error("Failed to decode auth response", zap.Error(err))
		return fmt.Errorf("%w: malformed auth response: %v", models.ErrServer, err)
	}
	return nil
}
