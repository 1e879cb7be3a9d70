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

// RenewAccessToken trades the stored refresh token for a fresh access token.
// Renewal is idempotent under concurrency: every successful renewal writes a
// complete credentials value and the last writer wins, so two racing renewals
// with the same refresh token cannot corrupt the stored state.
func (a *Auth) RenewAccessToken(ctx context.Context, logger zerolog.Logger) error {
	existing := a.credentials.Load()
	if existing.RefreshToken == "" {
		return ErrLoginRequired
	}

	newCreds, err := a.renewAccessToken(ctx, logger, existing)
	if nil != err {
		return fmt.Errorf("renew access token: %w", err)
	}
	a.credentials.Store(newCreds)

	if err := a.persist(ctx, newCreds); nil != err {
		logger.Error().Err(err).Msg("Failed to persist renewed credentials")
		return fmt.Errorf("failed to persist renewed credentials: %v", err)
	}

	return nil
}

func (a *Auth) renewAccessToken(
	ctx context.Context,
	logger zerolog.Logger,
	existing *Credentials,
) (*Credentials, error) {
	reqParams := make(url.Values, 5)
	reqParams.Add("client_id", a.conf.ClientID)
	reqParams.Add("client_secret", a.conf.ClientSecret)
	reqParams.Add("refresh_token", existing.RefreshToken)
	reqParams.Add("grant_type", "refresh_token")
	reqParams.Add("scope", oauthScope)

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
		logger.Error().Err(err).Msg("Failed to issue refresh token request")
		return nil, fmt.Errorf("failed to issue refresh token request: %w", err)
	}

	switch code := resp.Status; code {
	case http.StatusOK:
	case http.StatusUnauthorized:
		if ok, err := httputil.IsTokenExpiredResponse(resp.Body); nil != err {
			logger.Error().Err(err).Bytes("response_body", resp.Body).Msg("Failed to check if 401 response is token expired")
			return nil, fmt.Errorf("failed to check if 401 response is token expired: %v", err)
		} else if ok {
			return nil, ErrUnauthorized
		}

		if ok, err := httputil.IsTokenInvalidResponse(resp.Body); nil != err {
			logger.Error().Err(err).Bytes("response_body", resp.Body).Msg("Failed to check if 401 response is token invalid")
			return nil, fmt.Errorf("failed to check if 401 response is token invalid: %v", err)
		} else if ok {
			return nil, ErrUnauthorized
		}

		logger.Error().Bytes("response_body", resp.Body).Msg("Unexpected 401 response")

		return nil, fmt.Errorf("received unknown 401 response with body: %s", string(resp.Body))
	case http.StatusBadRequest:
		var respBody struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if err := json.Unmarshal(resp.Body, &respBody); nil != err {
			logger.Error().Err(err).Msg("Failed to decode 400 response body")
			return nil, fmt.Errorf("failed to decode 400 response body: %v", err)
		}

		if respBody.Error == "invalid_grant" {
			return nil, ErrUnauthorized
		}

		logger.
			Error().
			Str("error", respBody.Error).
			Str("error_description", respBody.ErrorDescription).
			Bytes("response_body", resp.Body).
			Msg("Unexpected 400 response")

		return nil, fmt.Errorf("received unknown 400 response with body: %s", string(resp.Body))
	default:
		logger.Error().Int("status_code", code).Bytes("response_body", resp.Body).Msg("Unexpected response status code")

		return nil, fmt.Errorf("unexpected status code %d with body: %s", code, string(resp.Body))
	}

	var respBody struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &respBody); nil != err {
		logger.Error().Err(err).Bytes("response_body", resp.Body).Msg("Failed to decode 200 response body")
		return nil, fmt.Errorf("failed to decode 200 response body: %v", err)
	}

	return &Credentials{
		AccessToken:  respBody.AccessToken,
		RefreshToken: existing.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(respBody.ExpiresIn) * time.Second).UTC(),
		SessionID:    existing.SessionID,
	}, nil
}
