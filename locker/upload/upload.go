// Package upload negotiates track uploads with the service. A batch walks a
// fixed sequence of phases: device authorization, metadata submission,
// content-sample matching, then per-track session creation and binary
// transfer for whatever the server did not already have, and a closing state
// update. Per-track failures skip the track and keep the batch going; only
// device authorization failures abort the whole batch.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/xeptore/skylocker/cache"
	"github.com/xeptore/skylocker/config"
	"github.com/xeptore/skylocker/httputil"
	"github.com/xeptore/skylocker/locker/auth"
	"github.com/xeptore/skylocker/locker/fs"
	"github.com/xeptore/skylocker/mathutil"
	"github.com/xeptore/skylocker/unit"
)

const (
	defaultBaseURL    = "https://uploads.skylocker.io/upsj"
	defaultSessionURL = "https://uploads.skylocker.io/transfer/session"

	authPath     = "/upauth"
	metadataPath = "/metadata"
	samplePath   = "/sample"
	statePath    = "/uploadstate"

	// Leading bytes submitted for content matching.
	sampleSize = 128 * unit.Kilobyte

	// Tracks per metadata request.
	metadataBatchSize = 250
)

// tokenSource supplies credentials and renews them on demand. Session
// creation renews before every attempt since transfers can outlive a token.
type tokenSource interface {
	Credentials() *auth.Credentials
	RenewAccessToken(ctx context.Context, logger zerolog.Logger) error
}

// Track is one local file queued for upload, with its declared metadata.
type Track struct {
	ClientID       string
	File           fs.TrackFile
	Title          string
	Artist         string
	Album          string
	Genre          string
	TrackNumber    int
	DiscNumber     int
	DurationMillis int64
	BitrateKbps    int
}

// Result partitions a finished batch: tracks whose bytes were transferred,
// and tracks the server already had under some identity. The two maps are
// disjoint; a track that was skipped appears in neither.
type Result struct {
	Uploaded map[string]string
	Matched  map[string]string
}

type Pipeline struct {
	conf       config.Locker
	auth       tokenSource
	transport  *httputil.Transport
	cache      *cache.Cache
	deviceID   string
	baseURL    string
	sessionURL string
	retryDelay time.Duration
}

func New(
	conf config.Locker,
	tokens tokenSource,
	transport *httputil.Transport,
	c *cache.Cache,
	deviceID string,
) *Pipeline {
	return &Pipeline{
		conf:       conf,
		auth:       tokens,
		transport:  transport,
		cache:      c,
		deviceID:   deviceID,
		baseURL:    defaultBaseURL,
		sessionURL: defaultSessionURL,
		retryDelay: sessionRetryDelay,
	}
}

// Run pushes a batch of tracks through the negotiation. The returned result
// is complete even when individual tracks were skipped; an error is returned
// only for batch-fatal conditions.
func (p *Pipeline) Run(ctx context.Context, logger zerolog.Logger, tracks []Track) (*Result, error) {
	result := &Result{
		Uploaded: make(map[string]string, len(tracks)),
		Matched:  make(map[string]string, len(tracks)),
	}
	if len(tracks) == 0 {
		return result, nil
	}

	byClientID := make(map[string]Track, len(tracks))
	sizes := make(map[string]int64, len(tracks))
	for _, t := range tracks {
		if t.ClientID == "" {
			return nil, fmt.Errorf("track %q carries no client id", t.File.Name())
		}
		size, err := t.File.Size()
		if nil != err {
			return nil, fmt.Errorf("failed to size track %q: %w", t.File.Name(), err)
		}
		byClientID[t.ClientID] = t
		sizes[t.ClientID] = size
	}

	if err := p.authorizeDevice(ctx, logger); nil != err {
		return nil, fmt.Errorf("failed to authorize uploading device: %w", err)
	}

	signals, err := p.submitMetadata(ctx, logger, tracks, sizes)
	if nil != err {
		return nil, fmt.Errorf("failed to submit track metadata: %w", err)
	}

	var sampleOrder []string
	pending := make(map[string]trackSignal, len(tracks))
	for _, s := range signals {
		if _, known := byClientID[s.ClientID]; !known {
			logger.Warn().Str("client_id", s.ClientID).Msg("Server signaled an unknown track, ignoring")
			continue
		}

		if s.Code == signalSampleRequested {
			if remoteID, ok := p.cache.UploadStatus.Get(s.ClientID); ok {
				// A prior batch already learned this content exists remotely.
				result.Matched[s.ClientID] = remoteID
				continue
			}
			sampleOrder = append(sampleOrder, s.ClientID)
			continue
		}
		pending[s.ClientID] = s
	}

	if len(sampleOrder) > 0 {
		sampled, err := p.matchSamples(ctx, logger, byClientID, sampleOrder)
		if nil != err {
			return nil, fmt.Errorf("failed to match content samples: %w", err)
		}
		for _, s := range sampled {
			pending[s.ClientID] = s
		}
	}

	var needsSession []trackSignal
	for _, s := range pending {
		switch s.Code {
		case signalMatched, signalAlreadyExists:
			result.Matched[s.ClientID] = s.ServerID
			p.cache.UploadStatus.Set(s.ClientID, s.ServerID, cache.DefaultUploadStatusTTL)
		case signalUploadRequested:
			needsSession = append(needsSession, s)
		default:
			logger.Warn().
				Str("client_id", s.ClientID).
				Int64("code", int64(s.Code)).
				Msg("Server rejected track, skipping")
		}
	}

	for _, s := range needsSession {
		track := byClientID[s.ClientID]

		putURL, ok, err := p.createTransferSession(ctx, logger, track, s.ServerID, sizes[s.ClientID], len(tracks))
		if nil != err {
			return result, fmt.Errorf("failed to create transfer session for track %q: %w", track.File.Name(), err)
		}
		if !ok {
			continue
		}

		if err := p.transfer(ctx, logger, track, putURL, sizes[s.ClientID]); nil != err {
			logger.Warn().
				Err(err).
				Str("client_id", s.ClientID).
				Msg("Track transfer failed, skipping")
			continue
		}

		result.Uploaded[s.ClientID] = s.ServerID
	}

	// A batch that never opened a session has nothing to close.
	if len(needsSession) > 0 {
		if err := p.finalize(ctx, logger); nil != err {
			logger.Warn().Err(err).Msg("Failed to close upload state")
		}
	}

	return result, nil
}

func (p *Pipeline) authorizeDevice(ctx context.Context, logger zerolog.Logger) error {
	body := encodeAuthRequest(p.deviceID, p.conf.DeviceName)

	resp, err := p.sendEnvelope(ctx, authPath, body, time.Duration(p.conf.Timeouts.AuthorizeDevice)*time.Second)
	if nil != err {
		return err
	}

	status, err := decodeAuthResponse(resp.Body)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to decode device auth response")
		return err
	}
	if status != authStatusOK {
		return fmt.Errorf("device authorization rejected with status %d", status)
	}

	return nil
}

func (p *Pipeline) submitMetadata(
	ctx context.Context,
	logger zerolog.Logger,
	tracks []Track,
	sizes map[string]int64,
) ([]trackSignal, error) {
	numBatches := mathutil.DivCeil(len(tracks), metadataBatchSize)
	logger.Debug().Int("tracks", len(tracks)).Int("batches", numBatches).Msg("Submitting track metadata")

	signals := make([]trackSignal, 0, len(tracks))
	for _, batch := range lo.Chunk(tracks, metadataBatchSize) {
		body := encodeMetadataRequest(p.deviceID, batch, sizes)

		resp, err := p.sendEnvelope(ctx, metadataPath, body, time.Duration(p.conf.Timeouts.SubmitMetadata)*time.Second)
		if nil != err {
			return nil, err
		}

		batchSignals, err := decodeTrackSignals(resp.Body)
		if nil != err {
			logger.Error().Err(err).Msg("Failed to decode metadata response")
			return nil, err
		}
		signals = append(signals, batchSignals...)
	}

	return signals, nil
}

func (p *Pipeline) matchSamples(
	ctx context.Context,
	logger zerolog.Logger,
	byClientID map[string]Track,
	order []string,
) ([]trackSignal, error) {
	samples := make(map[string][]byte, len(order))
	for _, clientID := range order {
		sample, err := readSample(byClientID[clientID].File)
		if nil != err {
			return nil, fmt.Errorf("failed to read content sample: %w", err)
		}
		samples[clientID] = sample
	}

	body := encodeSampleRequest(p.deviceID, samples, order)

	resp, err := p.sendEnvelope(ctx, samplePath, body, time.Duration(p.conf.Timeouts.MatchSamples)*time.Second)
	if nil != err {
		return nil, err
	}

	signals, err := decodeTrackSignals(resp.Body)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to decode sample response")
		return nil, err
	}

	return signals, nil
}

func (p *Pipeline) finalize(ctx context.Context, logger zerolog.Logger) error {
	body := encodeStateRequest(p.deviceID, uploadStateStopped)

	if _, err := p.sendEnvelope(ctx, statePath, body, time.Duration(p.conf.Timeouts.SubmitMetadata)*time.Second); nil != err {
		return err
	}

	logger.Debug().Msg("Upload state closed")

	return nil
}

func (p *Pipeline) sendEnvelope(
	ctx context.Context,
	path string,
	body []byte,
	timeout time.Duration,
) (*httputil.Response, error) {
	creds := p.auth.Credentials()

	header := make(http.Header, 3)
	header.Add("Authorization", "Bearer "+creds.AccessToken)
	header.Add("Content-Type", "application/x-protobuf")
	header.Add("X-Device-Id", p.deviceID)

	resp, err := p.transport.Send(ctx, httputil.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL + path,
		Header:  header,
		Body:    body,
		Timeout: timeout,
	})
	if nil != err {
		return nil, fmt.Errorf("failed to send upload request: %w", err)
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d with body: %s", resp.Status, string(resp.Body))
	}

	return resp, nil
}

func readSample(f fs.TrackFile) (_ []byte, err error) {
	r, _, err := f.Open()
	if nil != err {
		return nil, err
	}
	defer func() {
		if closeErr := r.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close track file: %v", closeErr))
		}
	}()

	sample, err := io.ReadAll(io.LimitReader(r, sampleSize))
	if nil != err {
		return nil, fmt.Errorf("failed to read track sample: %v", err)
	}

	return sample, nil
}
