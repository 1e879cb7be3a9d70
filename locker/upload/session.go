package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"github.com/xeptore/skylocker/httputil"
	"github.com/xeptore/skylocker/must"
)

const (
	sessionMaxAttempts = 10
	sessionRetryDelay  = 500 * time.Millisecond

	// Session error codes observed from the service. Anything unseen is
	// treated as transient and retried; see classifySessionCode.
	sessionCodeAlreadyPresent = 200
	sessionCodeRejected       = 404
	sessionCodeStillSyncing   = 503
)

// errTrackSkipped stops the retry loop without surfacing a batch error: the
// server told us this track needs no transfer, or refused it terminally.
var errTrackSkipped = errors.New("track skipped")

type inlinedField struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type externalField struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type sessionField struct {
	Inlined  *inlinedField  `json:"inlined,omitempty"`
	External *externalField `json:"external,omitempty"`
}

type sessionRequest struct {
	ClientID        string         `json:"clientId"`
	ProtocolVersion string         `json:"protocolVersion"`
	Fields          []sessionField `json:"fields"`
}

func inlined(name, content string) sessionField {
	return sessionField{Inlined: &inlinedField{Name: name, Content: content}, External: nil}
}

// createTransferSession asks the server for a transfer session. A granted
// session returns (url, true, nil). The attempt is repeated at a fixed delay
// while the server reports it is still synchronizing, or any unrecognized
// code; a code saying the content is already present or the request was
// rejected, and retry exhaustion, all skip the track with (_, false, nil) so
// the batch continues. The access token is renewed before every attempt
// since a long batch can outlive it.
func (p *Pipeline) createTransferSession(
	ctx context.Context,
	logger zerolog.Logger,
	track Track,
	serverID string,
	size int64,
	batchSize int,
) (string, bool, error) {
	reqBody, err := json.Marshal(sessionRequest{
		ClientID:        track.ClientID,
		ProtocolVersion: "1.1",
		Fields: []sessionField{
			inlined("ClientId", track.ClientID),
			inlined("ServerId", serverID),
			inlined("TrackBitRate", strconv.Itoa(track.BitrateKbps)),
			inlined("TrackDoNotRematch", "false"),
			inlined("SyncNow", "true"),
			inlined("ClientTotalSongCount", strconv.Itoa(batchSize)),
			{
				Inlined: nil,
				External: &externalField{
					Name:     "track",
					Filename: track.File.Name(),
					Size:     size,
				},
			},
		},
	})
	must.NilErr(err)

	var putURL string
	attempt := 0
	err = retry.Do(
		ctx,
		retry.WithMaxRetries(sessionMaxAttempts-1, retry.NewConstant(p.retryDelay)),
		func(ctx context.Context) error {
			attempt++

			if err := p.auth.RenewAccessToken(ctx, logger); nil != err {
				return fmt.Errorf("failed to renew access token: %w", err)
			}

			url, err := p.requestSession(ctx, logger, reqBody)
			if nil != err {
				var codeErr *sessionCodeError
				if errors.As(err, &codeErr) {
					if codeErr.Terminal {
						logger.Debug().
							Str("client_id", track.ClientID).
							Int64("code", codeErr.Code).
							Msg("Server declined transfer session terminally, skipping track")

						return errTrackSkipped
					}

					logger.Debug().
						Str("client_id", track.ClientID).
						Int64("code", codeErr.Code).
						Int("attempt", attempt).
						Msg("Transfer session not ready, will retry")

					return retry.RetryableError(err)
				}

				return err
			}
			putURL = url

			return nil
		},
	)
	if nil != err {
		if errors.Is(err, errTrackSkipped) {
			return "", false, nil
		}

		var codeErr *sessionCodeError
		if errors.As(err, &codeErr) {
			// Retry bound exceeded on a transient code. Best effort: skip the
			// track, keep the batch.
			logger.Warn().
				Str("client_id", track.ClientID).
				Int64("code", codeErr.Code).
				Msg("Transfer session attempts exhausted, skipping track")

			return "", false, nil
		}

		return "", false, err
	}

	return putURL, true, nil
}

// sessionCodeError is the server's structured refusal of a session request.
type sessionCodeError struct {
	Code     int64
	Terminal bool
}

func (e *sessionCodeError) Error() string {
	return fmt.Sprintf("session request refused with code %d", e.Code)
}

// classifySessionCode decides whether a refusal code ends the track or is
// worth another attempt. Codes outside the known set are treated as
// transient.
func classifySessionCode(code int64) *sessionCodeError {
	switch code {
	case sessionCodeAlreadyPresent, sessionCodeRejected:
		return &sessionCodeError{Code: code, Terminal: true}
	default:
		return &sessionCodeError{Code: code, Terminal: false}
	}
}

func (p *Pipeline) requestSession(ctx context.Context, logger zerolog.Logger, reqBody []byte) (string, error) {
	creds := p.auth.Credentials()

	header := make(http.Header, 2)
	header.Add("Authorization", "Bearer "+creds.AccessToken)
	header.Add("Content-Type", "application/json")

	resp, err := p.transport.Send(ctx, httputil.Request{
		Method:  http.MethodPost,
		URL:     p.sessionURL,
		Header:  header,
		Body:    reqBody,
		Timeout: time.Duration(p.conf.Timeouts.CreateSession) * time.Second,
	})
	if nil != err {
		return "", fmt.Errorf("failed to send session request: %w", err)
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d with body: %s", resp.Status, string(resp.Body))
	}

	if code := gjson.GetBytes(resp.Body, "errorMessage.additionalInfo.responseCode"); code.Exists() {
		return "", classifySessionCode(code.Int())
	}

	putURL := gjson.GetBytes(resp.Body, "sessionStatus.externalFieldTransfers.0.putInfo.url")
	if !putURL.Exists() || putURL.String() == "" {
		logger.Error().Bytes("response_body", resp.Body).Msg("Session response carries no transfer URL")
		return "", fmt.Errorf("session response carries no transfer URL: %s", string(resp.Body))
	}

	return putURL.String(), nil
}
