// Package locker is the client facade: it wires the session, catalog,
// mutation, and upload components together and owns the in-memory catalog
// index they all share.
package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/xeptore/skylocker/cache"
	"github.com/xeptore/skylocker/config"
	"github.com/xeptore/skylocker/httputil"
	"github.com/xeptore/skylocker/locker/auth"
	"github.com/xeptore/skylocker/locker/catalog"
	"github.com/xeptore/skylocker/locker/mutate"
	"github.com/xeptore/skylocker/locker/types"
	"github.com/xeptore/skylocker/locker/upload"
	"github.com/xeptore/skylocker/store"
)

type Client struct {
	conf      config.Locker
	auth      *auth.Auth
	store     *store.Store
	transport *httputil.Transport
	catalog   *catalog.Sync
	mutate    *mutate.Engine
	upload    *upload.Pipeline
	lib       *types.Library
	loginSem  chan struct{}
	syncSem   chan struct{}
	uploadSem chan struct{}
}

func NewClient(ctx context.Context, conf config.Locker) (*Client, error) {
	st, err := store.New(conf.CredsPath)
	if nil != err {
		return nil, fmt.Errorf("failed to open credential store: %v", err)
	}

	transport, err := httputil.NewTransport(conf.RequestsPerSecond)
	if nil != err {
		return nil, fmt.Errorf("failed to create transport: %v", err)
	}

	a, err := auth.New(ctx, conf, transport, st)
	if nil != err {
		return nil, fmt.Errorf("failed to create auth: %v", err)
	}

	deviceID, err := st.LoadDeviceID(ctx)
	if nil != err {
		return nil, fmt.Errorf("failed to load device id: %v", err)
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := st.StoreDeviceID(ctx, deviceID); nil != err {
			return nil, fmt.Errorf("failed to persist device id: %v", err)
		}
	}

	c := cache.New()

	return &Client{
		conf:      conf,
		auth:      a,
		store:     st,
		transport: transport,
		catalog:   catalog.New(conf, a, transport, c),
		mutate:    mutate.New(conf, a, transport, c),
		upload:    upload.New(conf, a, transport, c, deviceID),
		lib:       types.NewLibrary(),
		loginSem:  make(chan struct{}, 1),
		syncSem:   make(chan struct{}, 1),
		uploadSem: make(chan struct{}, 1),
	}, nil
}

var (
	ErrTokenRenewed          = errors.New("auth token renewed")
	ErrLoginRequired         = errors.New("login required")
	ErrLoginInProgress       = errors.New("login in progress")
	ErrSyncInProgress        = errors.New("sync in progress")
	ErrUploadInProgress      = errors.New("upload in progress")
	ErrUnauthorized          = auth.ErrUnauthorized
	ErrNetwork               = httputil.ErrNetwork
	ErrDanglingSongReference = mutate.ErrDanglingSongReference
	ErrCountMismatch         = mutate.ErrCountMismatch
)

func (c *Client) Close() error {
	if err := c.store.Close(); nil != err {
		return fmt.Errorf("failed to close credential store: %v", err)
	}

	return nil
}

// Library exposes the shared catalog index. Callers reading or writing it
// directly must hold its Mux.
func (c *Client) Library() *types.Library {
	return c.lib
}

func (c *Client) IsAuthenticated() bool {
	return c.auth.IsAuthenticated()
}

// TryLogin exchanges an authorization code for credentials. Only one login
// can be in flight at a time.
func (c *Client) TryLogin(ctx context.Context, logger zerolog.Logger, code string) error {
	select {
	case c.loginSem <- struct{}{}:
		defer func() { <-c.loginSem }()

		if err := c.auth.Authorize(ctx, logger, code); nil != err {
			return fmt.Errorf("failed to authorize: %w", err)
		}

		return nil
	default:
		logger.Debug().Msg("Another login in progress")
		return ErrLoginInProgress
	}
}

// TrySyncLibrary pulls the song, deleted-song, and playlist feeds into the
// index. Progress covers the three feeds as one [0,1] range.
func (c *Client) TrySyncLibrary(ctx context.Context, logger zerolog.Logger, progress catalog.Progress) error {
	select {
	case c.syncSem <- struct{}{}:
		logger.Debug().Msg("Syncing library")
		defer func() { <-c.syncSem }()

		return c.withTokenRenewal(ctx, logger, func(ctx context.Context) error {
			if err := c.catalog.FetchAllSongs(ctx, logger, c.lib, scaled(progress, 0, 0.6)); nil != err {
				return err
			}
			if err := c.catalog.FetchDeletedSongs(ctx, logger, c.lib, scaled(progress, 0.6, 0.8)); nil != err {
				return err
			}

			return c.catalog.FetchPlaylists(ctx, logger, c.lib, scaled(progress, 0.8, 1))
		})
	default:
		logger.Debug().Msg("Another sync in progress")
		return ErrSyncInProgress
	}
}

func scaled(progress catalog.Progress, from, to float64) catalog.Progress {
	if progress == nil {
		return nil
	}

	return func(fraction float64) {
		progress(from + fraction*(to-from))
	}
}

// FetchPlaylistContents pulls one playlist's entries into the index.
func (c *Client) FetchPlaylistContents(
	ctx context.Context,
	logger zerolog.Logger,
	playlistID types.PlaylistID,
) error {
	return c.withTokenRenewal(ctx, logger, func(ctx context.Context) error {
		return c.catalog.FetchPlaylistEntries(ctx, logger, c.lib, playlistID, nil)
	})
}

func (c *Client) CreatePlaylist(
	ctx context.Context,
	logger zerolog.Logger,
	title, description string,
	initialSongs []types.SongID,
) (playlist *types.Playlist, err error) {
	err = c.withTokenRenewal(ctx, logger, func(ctx context.Context) error {
		playlist, err = c.mutate.CreatePlaylist(ctx, logger, c.lib, title, description, initialSongs)
		return err
	})

	return playlist, err
}

func (c *Client) DeletePlaylist(
	ctx context.Context,
	logger zerolog.Logger,
	id types.PlaylistID,
) error {
	return c.withTokenRenewal(ctx, logger, func(ctx context.Context) error {
		_, err := c.mutate.DeletePlaylist(ctx, logger, c.lib, id)
		return err
	})
}

func (c *Client) AddPlaylistEntries(
	ctx context.Context,
	logger zerolog.Logger,
	playlistID types.PlaylistID,
	songs []types.SongID,
) (assigned map[types.SongID]types.EntryID, err error) {
	err = c.withTokenRenewal(ctx, logger, func(ctx context.Context) error {
		assigned, err = c.mutate.AddEntries(ctx, logger, c.lib, playlistID, songs)
		return err
	})

	return assigned, err
}

func (c *Client) ReorderPlaylistEntry(
	ctx context.Context,
	logger zerolog.Logger,
	playlistID types.PlaylistID,
	entryID types.EntryID,
	precedingID, followingID types.EntryID,
) error {
	return c.withTokenRenewal(ctx, logger, func(ctx context.Context) error {
		return c.mutate.ReorderEntry(ctx, logger, c.lib, playlistID, entryID, precedingID, followingID)
	})
}

func (c *Client) RemovePlaylistEntries(
	ctx context.Context,
	logger zerolog.Logger,
	playlistID types.PlaylistID,
	entries []types.EntryID,
) (removed map[types.EntryID]struct{}, err error) {
	err = c.withTokenRenewal(ctx, logger, func(ctx context.Context) error {
		removed, err = c.mutate.RemoveEntries(ctx, logger, c.lib, playlistID, entries)
		return err
	})

	return removed, err
}

func (c *Client) DeleteSongs(
	ctx context.Context,
	logger zerolog.Logger,
	songs []types.SongID,
) (removed map[types.SongID]struct{}, err error) {
	err = c.withTokenRenewal(ctx, logger, func(ctx context.Context) error {
		removed, err = c.mutate.DeleteSongs(ctx, logger, c.lib, songs)
		return err
	})

	return removed, err
}

// TryUploadTracks pushes a batch through the upload negotiation and merges
// both outcome maps into the index as new songs built from the declared
// metadata. Only one upload batch can be in flight at a time.
func (c *Client) TryUploadTracks(
	ctx context.Context,
	logger zerolog.Logger,
	tracks []upload.Track,
) (*upload.Result, error) {
	select {
	case c.uploadSem <- struct{}{}:
		logger.Debug().Int("tracks", len(tracks)).Msg("Uploading tracks")
		defer func() { <-c.uploadSem }()

		result, err := c.upload.Run(ctx, logger, tracks)
		if nil != err {
			return nil, fmt.Errorf("failed to upload tracks: %w", err)
		}

		byClientID := make(map[string]upload.Track, len(tracks))
		for _, t := range tracks {
			byClientID[t.ClientID] = t
		}

		now := types.MicrosOf(time.Now())
		songs := make([]types.Song, 0, len(result.Uploaded)+len(result.Matched))
		appendSongs := func(m map[string]string) {
			for clientID, remoteID := range m {
				t := byClientID[clientID]
				songs = append(songs, types.Song{ //nolint:exhaustruct
					ID:             types.SongID(remoteID),
					Title:          t.Title,
					Artist:         t.Artist,
					Album:          t.Album,
					Genre:          t.Genre,
					TrackNumber:    t.TrackNumber,
					DiscNumber:     t.DiscNumber,
					DurationMillis: t.DurationMillis,
					CreatedAt:      now,
					ModifiedAt:     now,
				})
			}
		}
		appendSongs(result.Uploaded)
		appendSongs(result.Matched)
		c.lib.MergeSongs(songs)

		return result, nil
	default:
		logger.Debug().Msg("Another upload in progress")
		return nil, ErrUploadInProgress
	}
}

// withTokenRenewal runs op, renewing the access token and retrying when the
// server reports it expired. Renewal failures surface as ErrLoginRequired so
// the caller can restart the login flow.
func (c *Client) withTokenRenewal(
	ctx context.Context,
	logger zerolog.Logger,
	op func(ctx context.Context) error,
) error {
	err := retry.Do(
		ctx,
		retry.WithMaxRetries(3, retry.NewFibonacci(1*time.Second)),
		func(ctx context.Context) error {
			if err := op(ctx); nil != err {
				if errors.Is(err, context.DeadlineExceeded) {
					return retry.RetryableError(context.DeadlineExceeded)
				}

				if errors.Is(err, auth.ErrUnauthorized) {
					if err := c.auth.RenewAccessToken(ctx, logger); nil != err {
						if errors.Is(err, context.DeadlineExceeded) {
							return retry.RetryableError(context.DeadlineExceeded)
						}

						if errors.Is(err, auth.ErrLoginRequired) || errors.Is(err, auth.ErrUnauthorized) {
							return ErrLoginRequired
						}

						return fmt.Errorf("failed to renew access token: %w", err)
					}

					return retry.RetryableError(ErrTokenRenewed)
				}

				return err
			}

			return nil
		},
	)
	if nil != err {
		if errors.Is(err, ErrTokenRenewed) {
			// Give the operation one more chance even when max retries are reached.
			return op(ctx)
		}

		return err
	}

	return nil
}
