package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/xeptore/skylocker/cache"
	"github.com/xeptore/skylocker/locker/types"
	"github.com/xeptore/skylocker/locker/wire"
)

// FetchAllSongs pulls the full-catalog song feed into lib. On failure the
// pages merged so far stay in lib; callers may keep the partial data.
func (s *Sync) FetchAllSongs(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	progress Progress,
) error {
	logger = logger.With().Str("feed", "songs").Logger()

	err := s.fetchFeed(ctx, logger, songFeedPath, nil, progress, func(records []gjson.Result) error {
		return s.decodeSongRecords(ctx, logger, records, wire.VariantCatalog, lib, func(song types.Song) {
			lib.Songs[song.ID] = song
		})
	})
	if nil != err {
		return fmt.Errorf("failed to fetch all songs: %w", err)
	}

	return nil
}

// FetchDeletedSongs pulls the deleted-song feed and drops the confirmed
// deletions from lib. Only the server's word removes a song from the index.
func (s *Sync) FetchDeletedSongs(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	progress Progress,
) error {
	logger = logger.With().Str("feed", "deleted_songs").Logger()

	err := s.fetchFeed(ctx, logger, deletedSongFeedPath, nil, progress, func(records []gjson.Result) error {
		return s.decodeSongRecords(ctx, logger, records, wire.VariantFeed, lib, func(song types.Song) {
			if song.Deleted {
				delete(lib.Songs, song.ID)
			}
		})
	})
	if nil != err {
		return fmt.Errorf("failed to fetch deleted songs: %w", err)
	}

	return nil
}

// FetchPlaylists pulls the playlist feed into lib, keeping already-fetched
// entry lists of playlists that are merely refreshed.
func (s *Sync) FetchPlaylists(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	progress Progress,
) error {
	logger = logger.With().Str("feed", "playlists").Logger()

	err := s.fetchFeed(ctx, logger, playlistFeedPath, nil, progress, func(records []gjson.Result) error {
		playlists := make([]types.Playlist, 0, len(records))
		for i, rec := range records {
			playlist, ok := wire.DecodePlaylistRecord(rec)
			if !ok {
				logger.Warn().Int("record_index", i).Str("record", rec.Raw).Msg("Skipping malformed playlist record")
				continue
			}
			playlists = append(playlists, playlist)
		}

		lib.MergePlaylists(playlists)

		return nil
	})
	if nil != err {
		return fmt.Errorf("failed to fetch playlists: %w", err)
	}

	return nil
}

// FetchPlaylistEntries pulls the contents feed of one playlist into lib.
// Recently fetched contents are served from cache; mutations against the
// playlist invalidate its cache key.
func (s *Sync) FetchPlaylistEntries(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	playlistID types.PlaylistID,
	progress Progress,
) error {
	logger = logger.With().Str("feed", "playlist_entries").Str("playlist_id", string(playlistID)).Logger()

	item, err := s.cache.PlaylistEntries.Fetch(
		string(playlistID),
		cache.DefaultPlaylistEntriesTTL,
		func() ([]types.PlaylistEntry, error) {
			return s.fetchPlaylistEntries(ctx, logger, playlistID, progress)
		},
	)
	if nil != err {
		return fmt.Errorf("failed to fetch playlist entries: %w", err)
	}
	entries := item.Value()

	lib.Mux.Lock()
	defer lib.Mux.Unlock()

	playlist, ok := lib.Playlists[playlistID]
	if !ok {
		return fmt.Errorf("playlist %s is not in the catalog index", playlistID)
	}

	// Attach song copies from the index; identity stays stable across copies.
	merged := make([]types.PlaylistEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Song == nil {
			if song, ok := lib.Songs[entry.SongID]; ok {
				songCopy := song
				entry.Song = &songCopy
			}
		}
		merged = append(merged, entry)
	}
	playlist.Entries = merged

	return nil
}

func (s *Sync) fetchPlaylistEntries(
	ctx context.Context,
	logger zerolog.Logger,
	playlistID types.PlaylistID,
	progress Progress,
) ([]types.PlaylistEntry, error) {
	var entries []types.PlaylistEntry
	body := map[string]any{"playlist-id": string(playlistID)}

	err := s.fetchFeed(ctx, logger, playlistEntryFeedPath, body, progress, func(records []gjson.Result) error {
		for i, rec := range records {
			entry, ok := wire.DecodeEntryRecord(rec)
			if !ok {
				logger.Warn().Int("record_index", i).Str("record", rec.Raw).Msg("Skipping malformed playlist entry record")
				continue
			}
			if entry.Deleted {
				continue
			}
			entries = append(entries, entry)
		}

		return nil
	})
	if nil != err {
		return nil, err
	}

	return entries, nil
}
