package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/xeptore/skylocker/httputil"
)

// Authorize exchanges an OAuth authorization code for token credentials and
// establishes a fresh cookie session. The session id is generated once per
// login and kept stable across token renewals.
func (a *Auth) Authorize(ctx context.Context, logger zerolog.Logger, code string) error {
	reqParams := make(url.Values, 4)
	reqParams.Add("client_id", a.conf.ClientID)
	reqParams.Add("client_secret", a.conf.ClientSecret)
	reqParams.Add("grant_type", "authorization_code")
	reqParams.Add("code", code)

	header := make(http.Header, 2)
	header.Add("Content-Type", "application/x-www-form-urlencoded")
	header.Add("Accept", "application/json")

	resp, err := a.transport.Send(ctx, httputil.Request{
		Method:  http.MethodPost,
		URL:     a.tokenURL,
		Header:  header,
		Body:    []byte(reqParams.Encode()),
		Timeout: time.Duration(a.conf.Timeouts.RenewToken) * time.Second,
	})
	if nil != err {
		logger.Error().Err(err).Msg("Failed to issue authorization code exchange request")
		return fmt.Errorf("failed to issue authorization code exchange request: %w", err)
	}

	switch code := resp.Status; code {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized:
		logger.Error().Int("status_code", code).Bytes("response_body", resp.Body).Msg("Authorization code rejected")
		return ErrUnauthorized
	default:
		logger.Error().Int("status_code", code).Bytes("response_body", resp.Body).Msg("Unexpected response status code")
		return fmt.Errorf("unexpected status code %d with body: %s", code, string(resp.Body))
	}

	var respBody struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &respBody); nil != err {
		logger.Error().Err(err).Bytes("response_body", resp.Body).Msg("Failed to decode token response body")
		return fmt.Errorf("failed to decode token response body: %v", err)
	}

	if respBody.RefreshToken == "" {
		return fmt.Errorf("token response carries no refresh token: %s", string(resp.Body))
	}

	creds := &Credentials{
		AccessToken:  respBody.AccessToken,
		RefreshToken: respBody.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(respBody.ExpiresIn) * time.Second).UTC(),
		SessionID:    newSessionID(),
	}
	a.credentials.Store(creds)

	if err := a.persist(ctx, creds); nil != err {
		logger.Error().Err(err).Msg("Failed to persist credentials")
		return fmt.Errorf("failed to persist credentials: %v", err)
	}

	return nil
}
