// Package mutate builds and submits batched create/update/delete operations
// against the remote library. Every operation carries a client-chosen
// correlation id; server results are mapped back strictly by correlation id
// since responses may reorder.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/xeptore/skylocker/cache"
	"github.com/xeptore/skylocker/config"
	"github.com/xeptore/skylocker/httputil"
	"github.com/xeptore/skylocker/locker/auth"
	"github.com/xeptore/skylocker/locker/wire"
)

const (
	defaultBaseURL = "https://music.skylocker.io/sj/v2.5"

	playlistBatchPath = "/playlistbatch"
	entryBatchPath    = "/plentriesbatch"
	trackBatchPath    = "/trackbatch"

	resultCodeOK = "OK"
)

var (
	// ErrDanglingSongReference rejects an entry creation naming a song absent
	// from the catalog index; submitting it would be a contract violation.
	ErrDanglingSongReference = errors.New("song is not in the catalog index")
	// ErrCountMismatch reports a bulk delete whose confirmed count differs
	// from the requested count. Callers must re-sync rather than let the
	// local index silently diverge from server truth.
	ErrCountMismatch = errors.New("server-confirmed delete count does not match request")
)

type Engine struct {
	conf      config.Locker
	auth      *auth.Auth
	transport *httputil.Transport
	cache     *cache.Cache
	baseURL   string
}

func New(conf config.Locker, a *auth.Auth, transport *httputil.Transport, c *cache.Cache) *Engine {
	return &Engine{
		conf:      conf,
		auth:      a,
		transport: transport,
		cache:     c,
		baseURL:   defaultBaseURL,
	}
}

type opResult struct {
	CorrelationID string `json:"correlationId"`
	Code          string `json:"code"`
	ID            string `json:"id"`
}

func (e *Engine) submitBatch(
	ctx context.Context,
	logger zerolog.Logger,
	path string,
	batch wire.MutationBatch,
) (map[string]opResult, error) {
	raw, err := wire.EncodeMutationBatch(batch)
	if nil != err {
		return nil, fmt.Errorf("failed to encode mutation batch: %v", err)
	}

	creds := e.auth.Credentials()

	header := make(http.Header, 3)
	header.Add("Authorization", "Bearer "+creds.AccessToken)
	header.Add("Content-Type", "application/json")
	header.Add("X-Session-Id", creds.SessionID)

	resp, err := e.transport.Send(ctx, httputil.Request{
		Method:  http.MethodPost,
		URL:     e.baseURL + path,
		Header:  header,
		Body:    raw,
		Timeout: time.Duration(e.conf.Timeouts.SubmitMutations) * time.Second,
	})
	if nil != err {
		logger.Error().Err(err).Msg("Failed to send mutation batch request")
		return nil, fmt.Errorf("failed to send mutation batch request: %w", err)
	}

	switch code := resp.Status; code {
	case http.StatusOK:
	case http.StatusUnauthorized:
		if ok, probeErr := httputil.IsTokenExpiredResponse(resp.Body); nil != probeErr {
			logger.Error().Err(probeErr).Bytes("response_body", resp.Body).Msg("Failed to check if 401 response is token expired")
			return nil, fmt.Errorf("failed to check if 401 response is token expired: %v", probeErr)
		} else if ok {
			return nil, auth.ErrUnauthorized
		}

		logger.Error().Bytes("response_body", resp.Body).Msg("Unexpected 401 response")

		return nil, fmt.Errorf("received unknown 401 response with body: %s", string(resp.Body))
	default:
		logger.Error().Int("status_code", code).Bytes("response_body", resp.Body).Msg("Unexpected response status code")

		return nil, fmt.Errorf("unexpected status code %d with body: %s", code, string(resp.Body))
	}

	var respBody struct {
		Results []opResult `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &respBody); nil != err {
		logger.Error().Err(err).Bytes("response_body", resp.Body).Msg("Failed to decode mutation batch response")
		return nil, fmt.Errorf("%w: failed to decode mutation batch response: %v", wire.ErrProtocol, err)
	}

	results := make(map[string]opResult, len(respBody.Results))
	for _, r := range respBody.Results {
		results[r.CorrelationID] = r
	}

	return results, nil
}
