// Package catalog drives paginated retrieval of the remote library into the
// in-memory index. Pages are requested sequentially (continuation tokens make
// cross-page order inherent); within a large page, chunk decoding fans out
// across workers and merge order among records is unspecified.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/skylocker/cache"
	"github.com/xeptore/skylocker/config"
	"github.com/xeptore/skylocker/httputil"
	"github.com/xeptore/skylocker/locker/auth"
	"github.com/xeptore/skylocker/locker/types"
	"github.com/xeptore/skylocker/locker/wire"
)

const (
	defaultBaseURL = "https://music.skylocker.io/sj/v2.5"

	songFeedPath          = "/trackfeed"
	deletedSongFeedPath   = "/trackfeed/deleted"
	playlistFeedPath      = "/playlistfeed"
	playlistEntryFeedPath = "/plentryfeed"

	// The service batches feed responses in chunks of up to ~1,000 records.
	// A page holding more than parallelChunkThreshold chunks is decoded in
	// parallel with one worker per chunk.
	chunkSize              = 1000
	parallelChunkThreshold = 5

	// Per-page progress sub-ranges: request transfer owns [0, 0.8), parse
	// owns [0.8, 1.0], so callers see monotonic, non-overlapping progress.
	requestPhaseShare = 0.8
)

// Progress receives per-page completion fractions in [0,1].
type Progress func(fraction float64)

func (p Progress) report(fraction float64) {
	if p != nil {
		p(fraction)
	}
}

type Sync struct {
	conf      config.Locker
	auth      *auth.Auth
	transport *httputil.Transport
	cache     *cache.Cache
	baseURL   string
}

func New(conf config.Locker, a *auth.Auth, transport *httputil.Transport, c *cache.Cache) *Sync {
	return &Sync{
		conf:      conf,
		auth:      a,
		transport: transport,
		cache:     c,
		baseURL:   defaultBaseURL,
	}
}

// fetchFeed walks a continuation-token feed until the server stops returning
// a token, handing each page's records to merge. Cancellation is cooperative:
// a signaled ctx aborts the in-flight request and starts no further pages;
// pages already merged stay merged and the ctx error is returned.
func (s *Sync) fetchFeed(
	ctx context.Context,
	logger zerolog.Logger,
	feedPath string,
	body map[string]any,
	progress Progress,
	merge func(records []gjson.Result) error,
) error {
	token := ""
	for page := 0; ; page++ {
		if err := ctx.Err(); nil != err {
			return err
		}

		pageLogger := logger.With().Int("page", page).Logger()
		progress.report(0)

		raw, nextToken, err := s.fetchPage(ctx, pageLogger, feedPath, body, token)
		if nil != err {
			return fmt.Errorf("failed to fetch feed page %d: %w", page, err)
		}
		progress.report(requestPhaseShare)

		records, err := wire.Records(raw)
		if nil != err {
			return fmt.Errorf("failed to extract records from feed page %d: %w", page, err)
		}

		if err := merge(records); nil != err {
			return fmt.Errorf("failed to merge feed page %d: %w", page, err)
		}
		progress.report(1)

		if nextToken == "" {
			return nil
		}
		token = nextToken
	}
}

func (s *Sync) fetchPage(
	ctx context.Context,
	logger zerolog.Logger,
	feedPath string,
	body map[string]any,
	token string,
) (data []byte, nextToken string, err error) {
	creds := s.auth.Credentials()

	reqBody := make(map[string]any, len(body)+2)
	for k, v := range body {
		reqBody[k] = v
	}
	reqBody["max-results"] = chunkSize
	if token != "" {
		reqBody["start-token"] = token
	}

	raw, err := json.Marshal(reqBody)
	if nil != err {
		return nil, "", fmt.Errorf("failed to encode feed request body: %v", err)
	}

	header := make(http.Header, 3)
	header.Add("Authorization", "Bearer "+creds.AccessToken)
	header.Add("Content-Type", "application/json")
	header.Add("X-Session-Id", creds.SessionID)

	resp, err := s.transport.Send(ctx, httputil.Request{
		Method:  http.MethodPost,
		URL:     s.baseURL + feedPath,
		Header:  header,
		Body:    raw,
		Timeout: time.Duration(s.conf.Timeouts.FetchPage) * time.Second,
	})
	if nil != err {
		logger.Error().Err(err).Msg("Failed to send feed page request")
		return nil, "", fmt.Errorf("failed to send feed page request: %w", err)
	}

	switch code := resp.Status; code {
	case http.StatusOK:
	case http.StatusUnauthorized:
		if ok, probeErr := httputil.IsTokenExpiredResponse(resp.Body); nil != probeErr {
			logger.Error().Err(probeErr).Bytes("response_body", resp.Body).Msg("Failed to check if 401 response is token expired")
			return nil, "", fmt.Errorf("failed to check if 401 response is token expired: %v", probeErr)
		} else if ok {
			return nil, "", auth.ErrUnauthorized
		}

		if ok, probeErr := httputil.IsTokenInvalidResponse(resp.Body); nil != probeErr {
			logger.Error().Err(probeErr).Bytes("response_body", resp.Body).Msg("Failed to check if 401 response is token invalid")
			return nil, "", fmt.Errorf("failed to check if 401 response is token invalid: %v", probeErr)
		} else if ok {
			return nil, "", auth.ErrUnauthorized
		}

		logger.Error().Bytes("response_body", resp.Body).Msg("Unexpected 401 response")

		return nil, "", fmt.Errorf("received unknown 401 response with body: %s", string(resp.Body))
	default:
		logger.Error().Int("status_code", code).Bytes("response_body", resp.Body).Msg("Unexpected response status code")

		return nil, "", fmt.Errorf("unexpected status code %d with body: %s", code, string(resp.Body))
	}

	if !gjson.ValidBytes(resp.Body) {
		return nil, "", fmt.Errorf("%w: invalid feed page json", wire.ErrProtocol)
	}

	dataNode := gjson.GetBytes(resp.Body, "data")
	if !dataNode.Exists() {
		return nil, "", fmt.Errorf("%w: feed page carries no data", wire.ErrProtocol)
	}

	return []byte(dataNode.Raw), gjson.GetBytes(resp.Body, "nextPageToken").String(), nil
}

// decodeSongRecords decodes one page's records, choosing the parallel path
// when the page splits into more than parallelChunkThreshold chunks. Both
// paths produce the same set; only throughput differs.
func (s *Sync) decodeSongRecords(
	ctx context.Context,
	logger zerolog.Logger,
	records []gjson.Result,
	variant wire.Variant,
	lib *types.Library,
	apply func(song types.Song),
) error {
	chunks := lo.Chunk(records, chunkSize)
	if len(chunks) <= parallelChunkThreshold {
		// Small page: per-record lock acquisition trades throughput for
		// latency to first merged record.
		for i, rec := range records {
			song, ok := wire.DecodeSongRecord(rec, variant)
			if !ok {
				logger.Warn().Int("record_index", i).Str("record", rec.Raw).Msg("Skipping malformed song record")
				continue
			}
			lib.Mux.Lock()
			apply(song)
			lib.Mux.Unlock()
		}

		return nil
	}

	wg, _ := errgroup.WithContext(ctx)
	accumulators := make([][]types.Song, len(chunks))
	for i, chunk := range chunks {
		wg.Go(func() error {
			local := make([]types.Song, 0, len(chunk))
			for j, rec := range chunk {
				song, ok := wire.DecodeSongRecord(rec, variant)
				if !ok {
					logger.Warn().Int("chunk", i).Int("record_index", j).Str("record", rec.Raw).Msg("Skipping malformed song record")
					continue
				}
				local = append(local, song)
			}
			accumulators[i] = local

			return nil
		})
	}

	// Decode tasks are never forcibly aborted; a partial record must not be
	// observable. Merging happens sequentially under the lock afterwards.
	if err := wg.Wait(); nil != err {
		return fmt.Errorf("failed to wait for chunk decode workers: %w", err)
	}

	lib.Mux.Lock()
	defer lib.Mux.Unlock()
	for _, acc := range accumulators {
		for _, song := range acc {
			apply(song)
		}
	}

	return nil
}
