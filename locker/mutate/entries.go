package mutate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/xeptore/skylocker/locker/types"
	"github.com/xeptore/skylocker/locker/wire"
)

func newCorrelationID() string {
	return uuid.NewString()
}

// entryChainLink is one planned entry insertion: its correlation id plus the
// correlation ids of its chain neighbors.
type entryChainLink struct {
	CorrelationID string
	SongID        types.SongID
	PrecedingID   string
	FollowingID   string
}

// buildEntryChain plans the insertion of songs as a singly-linked chain.
// Entry i (for i > 0) declares a preceding id equal to entry i-1's
// correlation id, and every entry except the last declares a following id
// equal to the next entry's correlation id, letting the server splice the
// chain into the existing order without the client knowing the position.
func buildEntryChain(songs []types.SongID) []entryChainLink {
	links := make([]entryChainLink, len(songs))
	for i, songID := range songs {
		links[i] = entryChainLink{
			CorrelationID: newCorrelationID(),
			SongID:        songID,
			PrecedingID:   "",
			FollowingID:   "",
		}
	}
	for i := range links {
		if i > 0 {
			links[i].PrecedingID = links[i-1].CorrelationID
		}
		if i < len(links)-1 {
			links[i].FollowingID = links[i+1].CorrelationID
		}
	}

	return links
}

// AddEntries inserts songs into a playlist, in order, as a linked chain.
// The returned mapping carries the server-assigned permanent entry id for
// each song, resolved by correlation id.
func (e *Engine) AddEntries(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	playlistID types.PlaylistID,
	songs []types.SongID,
) (map[types.SongID]types.EntryID, error) {
	if len(songs) == 0 {
		return map[types.SongID]types.EntryID{}, nil
	}

	for _, id := range songs {
		if !lib.HasSong(id) {
			return nil, fmt.Errorf("%w: %s", ErrDanglingSongReference, id)
		}
	}

	links := buildEntryChain(songs)

	var batch wire.MutationBatch
	for _, link := range links {
		batch.Add(wire.Mutation{
			Kind:          wire.MutationCreate,
			CorrelationID: link.CorrelationID,
			Record:        []any{string(playlistID), string(link.SongID), link.PrecedingID, link.FollowingID},
		})
	}

	results, err := e.submitBatch(ctx, logger, entryBatchPath, batch)
	if nil != err {
		return nil, fmt.Errorf("failed to submit entry create batch: %w", err)
	}

	assigned := make(map[types.SongID]types.EntryID, len(links))
	newEntries := make([]types.PlaylistEntry, 0, len(links))
	now := types.MicrosOf(time.Now())
	for _, link := range links {
		r, ok := results[link.CorrelationID]
		if !ok {
			return assigned, types.Partial(
				fmt.Errorf("%w: entry create result missing for correlation id %s", wire.ErrProtocol, link.CorrelationID),
			)
		}
		if r.Code != resultCodeOK {
			return assigned, types.Partial(
				fmt.Errorf("server rejected entry creation for song %s with code %s", link.SongID, r.Code),
			)
		}
		if r.ID == "" {
			return assigned, types.Partial(
				fmt.Errorf("%w: entry create result carries no id", wire.ErrProtocol),
			)
		}

		assigned[link.SongID] = types.EntryID(r.ID)
		newEntries = append(newEntries, types.PlaylistEntry{ //nolint:exhaustruct
			ID:        types.EntryID(r.ID),
			SongID:    link.SongID,
			CreatedAt: now,
		})
	}

	lib.Mux.Lock()
	if playlist, ok := lib.Playlists[playlistID]; ok {
		for i := range newEntries {
			if song, ok := lib.Songs[newEntries[i].SongID]; ok {
				songCopy := song
				newEntries[i].Song = &songCopy
			}
		}
		playlist.Entries = append(playlist.Entries, newEntries...)
	}
	lib.Mux.Unlock()

	e.cache.PlaylistEntries.Delete(string(playlistID))

	return assigned, nil
}

// ReorderEntry moves an existing entry between two anchor entries, named by
// their permanent entry ids. An empty preceding id pins the entry to the
// playlist head, an empty following id to the tail.
func (e *Engine) ReorderEntry(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	playlistID types.PlaylistID,
	entryID types.EntryID,
	precedingID, followingID types.EntryID,
) error {
	corrID := newCorrelationID()
	var batch wire.MutationBatch
	batch.Add(wire.Mutation{
		Kind:          wire.MutationUpdate,
		CorrelationID: corrID,
		Record:        []any{string(entryID), string(precedingID), string(followingID)},
	})

	results, err := e.submitBatch(ctx, logger, entryBatchPath, batch)
	if nil != err {
		return fmt.Errorf("failed to submit entry reorder batch: %w", err)
	}

	r, ok := results[corrID]
	if !ok {
		return fmt.Errorf("%w: entry reorder result missing for correlation id %s", wire.ErrProtocol, corrID)
	}
	if r.Code != resultCodeOK {
		return fmt.Errorf("server rejected entry reorder with code %s", r.Code)
	}

	lib.Mux.Lock()
	if playlist, ok := lib.Playlists[playlistID]; ok {
		playlist.Entries = reorderEntries(playlist.Entries, entryID, precedingID, followingID)
	}
	lib.Mux.Unlock()

	e.cache.PlaylistEntries.Delete(string(playlistID))

	return nil
}

func reorderEntries(
	entries []types.PlaylistEntry,
	entryID types.EntryID,
	precedingID, followingID types.EntryID,
) []types.PlaylistEntry {
	entry, found := lo.Find(entries, func(e types.PlaylistEntry) bool { return e.ID == entryID })
	if !found {
		return entries
	}
	rest := lo.Reject(entries, func(e types.PlaylistEntry, _ int) bool { return e.ID == entryID })

	at := 0
	switch {
	case precedingID != "":
		at = len(rest)
		for i, e := range rest {
			if e.ID == precedingID {
				at = i + 1
				break
			}
		}
	case followingID != "":
		at = len(rest)
		for i, e := range rest {
			if e.ID == followingID {
				at = i
				break
			}
		}
	}

	reordered := make([]types.PlaylistEntry, 0, len(entries))
	reordered = append(reordered, rest[:at]...)
	reordered = append(reordered, entry)
	reordered = append(reordered, rest[at:]...)

	return reordered
}

// RemoveEntries deletes playlist entries by entry identity. Confirmed
// removals are dropped from the local playlist; rejected ones stay.
func (e *Engine) RemoveEntries(
	ctx context.Context,
	logger zerolog.Logger,
	lib *types.Library,
	playlistID types.PlaylistID,
	entries []types.EntryID,
) (map[types.EntryID]struct{}, error) {
	if len(entries) == 0 {
		return map[types.EntryID]struct{}{}, nil
	}

	corrIDs := make(map[string]types.EntryID, len(entries))
	var batch wire.MutationBatch
	for _, entryID := range entries {
		corrID := newCorrelationID()
		corrIDs[corrID] = entryID
		batch.Add(wire.Mutation{
			Kind:          wire.MutationDelete,
			CorrelationID: corrID,
			Record:        []any{string(entryID)},
		})
	}

	results, err := e.submitBatch(ctx, logger, entryBatchPath, batch)
	if nil != err {
		return nil, fmt.Errorf("failed to submit entry delete batch: %w", err)
	}

	removed := make(map[types.EntryID]struct{}, len(entries))
	for corrID, entryID := range corrIDs {
		if r, ok := results[corrID]; ok && r.Code == resultCodeOK {
			removed[entryID] = struct{}{}
		}
	}

	lib.Mux.Lock()
	if playlist, ok := lib.Playlists[playlistID]; ok {
		kept := playlist.Entries[:0]
		for _, entry := range playlist.Entries {
			if _, gone := removed[entry.ID]; !gone {
				kept = append(kept, entry)
			}
		}
		playlist.Entries = kept
	}
	lib.Mux.Unlock()

	e.cache.PlaylistEntries.Delete(string(playlistID))

	if len(removed) != len(entries) {
		return removed, types.Partial(
			fmt.Errorf("%w: requested %d, confirmed %d", ErrCountMismatch, len(entries), len(removed)),
		)
	}

	return removed, nil
}
