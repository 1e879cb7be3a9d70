package mutate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xeptore/skylocker/locker/types"
	"github.com/xeptore/skylocker/locker/wire"
)

// CreatePlaylist creates a playlist and, when initialSongs is non-empty,
// populates it in order. The playlist joins the catalog index only after the
// server confirms it.
func (e *Engine) CreatePlaylist(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	title, description string,
	initialSongs []types.SongID,
) (*types.Playlist, error) {
	for _, id := range initialSongs {
		if !lib.HasSong(id) {
			return nil, fmt.Errorf("%w: %s", ErrDanglingSongReference, id)
		}
	}

	corrID := newCorrelationID()
	var batch wire.MutationBatch
	batch.Add(wire.Mutation{
		Kind:          wire.MutationCreate,
		CorrelationID: corrID,
		Record:        []any{title, description},
	})

	results, err := e.submitBatch(ctx, logger, playlistBatchPath, batch)
	if nil != err {
		return nil, fmt.Errorf("failed to submit playlist create batch: %w", err)
	}

	r, ok := results[corrID]
	if !ok {
		return nil, fmt.Errorf("%w: playlist create result missing for correlation id %s", wire.ErrProtocol, corrID)
	}
	if r.Code != resultCodeOK {
		return nil, fmt.Errorf("server rejected playlist creation with code %s", r.Code)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("%w: playlist create result carries no id", wire.ErrProtocol)
	}

	now := types.MicrosOf(time.Now())
	playlist := &types.Playlist{ //nolint:exhaustruct
		ID:          types.PlaylistID(r.ID),
		Title:       title,
		Description: description,
		CreatedAt:   now,
		ModifiedAt:  now,
	}

	lib.Mux.Lock()
	lib.Playlists[playlist.ID] = playlist
	lib.Mux.Unlock()

	if len(initialSongs) > 0 {
		if _, err := e.AddEntries(ctx, logger, lib, playlist.ID, initialSongs); nil != err {
			return playlist, fmt.Errorf("failed to populate created playlist: %w", err)
		}
	}

	return playlist, nil
}

// DeletePlaylist removes a playlist remotely, then drops it from the index.
// A rejected delete leaves the local playlist intact.
func (e *Engine) DeletePlaylist(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	id types.PlaylistID,
) (types.PlaylistID, error) {
	corrID := newCorrelationID()
	var batch wire.MutationBatch
	batch.Add(wire.Mutation{
		Kind:          wire.MutationDelete,
		CorrelationID: corrID,
		Record:        []any{string(id)},
	})

	results, err := e.submitBatch(ctx, logger, playlistBatchPath, batch)
	if nil != err {
		return "", fmt.Errorf("failed to submit playlist delete batch: %w", err)
	}

	r, ok := results[corrID]
	if !ok {
		return "", fmt.Errorf("%w: playlist delete result missing for correlation id %s", wire.ErrProtocol, corrID)
	}
	if r.Code != resultCodeOK {
		return "", fmt.Errorf("server rejected playlist deletion with code %s", r.Code)
	}

	lib.RemovePlaylist(id)
	e.cache.PlaylistEntries.Delete(string(id))

	return id, nil
}
