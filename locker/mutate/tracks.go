package mutate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xeptore/skylocker/locker/types"
	"github.com/xeptore/skylocker/locker/wire"
)

// DeleteSongs removes songs from the remote library. The confirmed count
// must equal the requested count; a mismatch is reported as a failure that
// still carries the confirmed identities, since the local index must not
// silently diverge from server truth. Callers re-sync on mismatch.
func (e *Engine) DeleteSongs(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	songs []types.SongID,
) (map[types.SongID]struct{}, error) {
	if len(songs) == 0 {
		return map[types.SongID]struct{}{}, nil
	}

	corrIDs := make(map[string]types.SongID, len(songs))
	var batch wire.MutationBatch
	for _, songID := range songs {
		corrID := newCorrelationID()
		corrIDs[corrID] = songID
		batch.Add(wire.Mutation{
			Kind:          wire.MutationDelete,
			CorrelationID: corrID,
			Record:        []any{string(songID)},
		})
	}

	results, err := e.submitBatch(ctx, logger, trackBatchPath, batch)
	if nil != err {
		return nil, fmt.Errorf("failed to submit track delete batch: %w", err)
	}

	removed := make(map[types.SongID]struct{}, len(songs))
	removedIDs := make([]types.SongID, 0, len(songs))
	for corrID, songID := range corrIDs {
		if r, ok := results[corrID]; ok && r.Code == resultCodeOK {
			removed[songID] = struct{}{}
			removedIDs = append(removedIDs, songID)
		}
	}

	// Only server-confirmed deletions leave the index; rejected songs stay.
	lib.RemoveSongs(removedIDs)

	if len(removed) != len(songs) {
		logger.Warn().
			Int("requested", len(songs)).
			Int("confirmed", len(removed)).
			Msg("Bulk song delete count mismatch")

		return removed, types.Partial(
			fmt.Errorf("%w: requested %d, confirmed %d", ErrCountMismatch, len(songs), len(removed)),
		)
	}

	return removed, nil
}
