package mutate_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/skylocker/cache"
	"github.com/xeptore/skylocker/config"
	"github.com/xeptore/skylocker/httputil"
	"github.com/xeptore/skylocker/locker/auth"
	"github.com/xeptore/skylocker/locker/mutate"
	"github.com/xeptore/skylocker/locker/types"
)

func newTestEngine(t *testing.T) *mutate.Engine {
	t.Helper()

	conf := config.Locker{ //nolint:exhaustruct
		ClientID:          "test-client",
		ClientSecret:      "test-secret",
		RequestsPerSecond: 10_000,
	}
	conf.Timeouts = config.Timeouts{ //nolint:exhaustruct
		SubmitMutations: 10,
	}

	transport, err := httputil.NewTransport(conf.RequestsPerSecond)
	require.NoError(t, err)

	a, err := auth.New(context.Background(), conf, transport, nil)
	require.NoError(t, err)

	return mutate.New(conf, a, transport, cache.New())
}

func newTestLibrary(songIDs ...types.SongID) *types.Library {
	lib := types.NewLibrary()
	songs := make([]types.Song, 0, len(songIDs))
	for i, id := range songIDs {
		songs = append(songs, types.Song{ //nolint:exhaustruct
			ID:    id,
			Title: fmt.Sprintf("Song %d", i+1),
		})
	}
	lib.MergeSongs(songs)

	return lib
}

// submittedOp is one decoded mutation from a batch request body.
type submittedOp struct {
	Kind          int
	CorrelationID string
	Record        []any
}

func decodeBatch(t *testing.T, r *http.Request) []submittedOp {
	t.Helper()

	var raw [][]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))

	ops := make([]submittedOp, 0, len(raw))
	for _, op := range raw {
		require.GreaterOrEqual(t, len(op), 2)
		kind, ok := op[0].(float64)
		require.True(t, ok)
		corrID, ok := op[1].(string)
		require.True(t, ok)
		ops = append(ops, submittedOp{
			Kind:          int(kind),
			CorrelationID: corrID,
			Record:        op[2:],
		})
	}

	return ops
}

func writeResults(t *testing.T, w http.ResponseWriter, results []map[string]string) {
	t.Helper()

	raw, err := json.Marshal(map[string]any{"results": results})
	require.NoError(t, err)
	_, err = w.Write(raw)
	require.NoError(t, err)
}

func okResult(corrID, id string) map[string]string {
	return map[string]string{"correlationId": corrID, "code": "OK", "id": id}
}

func TestAddEntriesChainOrdering(t *testing.T) {
	t.Parallel()

	var captured []submittedOp

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plentriesbatch", r.URL.Path)
		captured = decodeBatch(t, r)

		results := make([]map[string]string, 0, len(captured))
		for i, op := range captured {
			results = append(results, okResult(op.CorrelationID, fmt.Sprintf("entry-%d", i+1)))
		}
		writeResults(t, w, results)
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary("song-a", "song-b", "song-c")
	lib.Mux.Lock()
	lib.Playlists["pl-1"] = &types.Playlist{ID: "pl-1", Title: "Mix"} //nolint:exhaustruct
	lib.Mux.Unlock()

	assigned, err := engine.AddEntries(
		t.Context(),
		zerolog.Nop(),
		lib,
		"pl-1",
		[]types.SongID{"song-a", "song-b", "song-c"},
	)
	require.NoError(t, err)
	require.Len(t, captured, 3)

	first, second, third := captured[0], captured[1], captured[2]
	for _, op := range captured {
		assert.Equal(t, 1, op.Kind)
		require.Len(t, op.Record, 4)
		assert.Equal(t, "pl-1", op.Record[0])
	}

	// Each entry names its neighbors by their correlation ids, and the
	// boundary entries leave the outward-facing slot empty.
	assert.Equal(t, "", first.Record[2])
	assert.Equal(t, second.CorrelationID, first.Record[3])
	assert.Equal(t, first.CorrelationID, second.Record[2])
	assert.Equal(t, third.CorrelationID, second.Record[3])
	assert.Equal(t, second.CorrelationID, third.Record[2])
	assert.Equal(t, "", third.Record[3])

	assert.Equal(t, map[types.SongID]types.EntryID{
		"song-a": "entry-1",
		"song-b": "entry-2",
		"song-c": "entry-3",
	}, assigned)

	lib.Mux.Lock()
	entries := lib.Playlists["pl-1"].Entries
	lib.Mux.Unlock()
	require.Len(t, entries, 3)
	assert.Equal(t, types.SongID("song-a"), entries[0].SongID)
	assert.Equal(t, types.SongID("song-c"), entries[2].SongID)
	require.NotNil(t, entries[0].Song)
	assert.Equal(t, "Song 1", entries[0].Song.Title)
}

func TestAddEntriesRejectsDanglingSongReference(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request must be sent for a dangling song reference")
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary("song-a")

	_, err := engine.AddEntries(
		t.Context(),
		zerolog.Nop(),
		lib,
		"pl-1",
		[]types.SongID{"song-a", "song-missing"},
	)
	require.ErrorIs(t, err, mutate.ErrDanglingSongReference)
	assert.ErrorContains(t, err, "song-missing")
}

func TestRemoveEntries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plentriesbatch", r.URL.Path)
		ops := decodeBatch(t, r)

		results := make([]map[string]string, 0, len(ops))
		for _, op := range ops {
			assert.Equal(t, 3, op.Kind)
			require.Len(t, op.Record, 1)
			results = append(results, okResult(op.CorrelationID, op.Record[0].(string)))
		}
		writeResults(t, w, results)
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary("song-a", "song-b")
	lib.Mux.Lock()
	lib.Playlists["pl-1"] = &types.Playlist{ //nolint:exhaustruct
		ID:    "pl-1",
		Title: "Mix",
		Entries: []types.PlaylistEntry{
			{ID: "entry-1", SongID: "song-a"}, //nolint:exhaustruct
			{ID: "entry-2", SongID: "song-b"}, //nolint:exhaustruct
		},
	}
	lib.Mux.Unlock()

	removed, err := engine.RemoveEntries(
		t.Context(),
		zerolog.Nop(),
		lib,
		"pl-1",
		[]types.EntryID{"entry-1", "entry-2"},
	)
	require.NoError(t, err)
	assert.Equal(t, map[types.EntryID]struct{}{"entry-1": {}, "entry-2": {}}, removed)

	lib.Mux.Lock()
	entries := lib.Playlists["pl-1"].Entries
	lib.Mux.Unlock()
	assert.Empty(t, entries)
}

func TestReorderEntry(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plentriesbatch", r.URL.Path)
		ops := decodeBatch(t, r)
		require.Len(t, ops, 1)
		assert.Equal(t, 2, ops[0].Kind)
		require.Len(t, ops[0].Record, 3)
		assert.Equal(t, "entry-1", ops[0].Record[0])
		assert.Equal(t, "entry-3", ops[0].Record[1])
		writeResults(t, w, []map[string]string{okResult(ops[0].CorrelationID, "entry-1")})
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary("song-a", "song-b", "song-c")
	lib.Mux.Lock()
	lib.Playlists["pl-1"] = &types.Playlist{ //nolint:exhaustruct
		ID: "pl-1",
		Entries: []types.PlaylistEntry{
			{ID: "entry-1", SongID: "song-a"}, //nolint:exhaustruct
			{ID: "entry-2", SongID: "song-b"}, //nolint:exhaustruct
			{ID: "entry-3", SongID: "song-c"}, //nolint:exhaustruct
		},
	}
	lib.Mux.Unlock()

	// Move the first entry after the last one.
	err := engine.ReorderEntry(t.Context(), zerolog.Nop(), lib, "pl-1", "entry-1", "entry-3", "")
	require.NoError(t, err)

	lib.Mux.Lock()
	entries := lib.Playlists["pl-1"].Entries
	lib.Mux.Unlock()
	require.Len(t, entries, 3)
	assert.Equal(t, types.EntryID("entry-2"), entries[0].ID)
	assert.Equal(t, types.EntryID("entry-3"), entries[1].ID)
	assert.Equal(t, types.EntryID("entry-1"), entries[2].ID)
}

func TestRemoveEntriesCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ops := decodeBatch(t, r)

		// Confirm every entry but the last one.
		results := make([]map[string]string, 0, len(ops)-1)
		for _, op := range ops[:len(ops)-1] {
			results = append(results, okResult(op.CorrelationID, op.Record[0].(string)))
		}
		writeResults(t, w, results)
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary("song-a", "song-b", "song-c")
	lib.Mux.Lock()
	lib.Playlists["pl-1"] = &types.Playlist{ //nolint:exhaustruct
		ID: "pl-1",
		Entries: []types.PlaylistEntry{
			{ID: "entry-1", SongID: "song-a"}, //nolint:exhaustruct
			{ID: "entry-2", SongID: "song-b"}, //nolint:exhaustruct
			{ID: "entry-3", SongID: "song-c"}, //nolint:exhaustruct
		},
	}
	lib.Mux.Unlock()

	removed, err := engine.RemoveEntries(
		t.Context(),
		zerolog.Nop(),
		lib,
		"pl-1",
		[]types.EntryID{"entry-1", "entry-2", "entry-3"},
	)
	require.ErrorIs(t, err, mutate.ErrCountMismatch)
	var partial *types.PartialError
	require.ErrorAs(t, err, &partial)
	assert.Len(t, removed, 2)
	assert.Contains(t, removed, types.EntryID("entry-1"))
	assert.Contains(t, removed, types.EntryID("entry-2"))

	// The unconfirmed entry stays in the local playlist.
	lib.Mux.Lock()
	entries := lib.Playlists["pl-1"].Entries
	lib.Mux.Unlock()
	require.Len(t, entries, 1)
	assert.Equal(t, types.EntryID("entry-3"), entries[0].ID)
}

func TestDeleteSongsCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trackbatch", r.URL.Path)
		ops := decodeBatch(t, r)
		require.Len(t, ops, 3)

		results := make([]map[string]string, 0, 2)
		for _, op := range ops {
			if op.Record[0].(string) == "song-b" {
				continue
			}
			results = append(results, okResult(op.CorrelationID, op.Record[0].(string)))
		}
		writeResults(t, w, results)
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary("song-a", "song-b", "song-c")

	removed, err := engine.DeleteSongs(
		t.Context(),
		zerolog.Nop(),
		lib,
		[]types.SongID{"song-a", "song-b", "song-c"},
	)
	require.ErrorIs(t, err, mutate.ErrCountMismatch)
	assert.Equal(t, map[types.SongID]struct{}{"song-a": {}, "song-c": {}}, removed)

	// Confirmed deletions leave the index; the rejected song survives.
	assert.False(t, lib.HasSong("song-a"))
	assert.True(t, lib.HasSong("song-b"))
	assert.False(t, lib.HasSong("song-c"))
}

func TestDeleteSongsAllConfirmed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ops := decodeBatch(t, r)
		results := make([]map[string]string, 0, len(ops))
		for _, op := range ops {
			results = append(results, okResult(op.CorrelationID, op.Record[0].(string)))
		}
		writeResults(t, w, results)
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary("song-a", "song-b")

	removed, err := engine.DeleteSongs(
		t.Context(),
		zerolog.Nop(),
		lib,
		[]types.SongID{"song-a", "song-b"},
	)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.Equal(t, 0, lib.SongCount())
}

func TestCreatePlaylistWithInitialSongs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ops := decodeBatch(t, r)

		switch r.URL.Path {
		case "/playlistbatch":
			require.Len(t, ops, 1)
			assert.Equal(t, 1, ops[0].Kind)
			require.Len(t, ops[0].Record, 2)
			assert.Equal(t, "Road Trip", ops[0].Record[0])
			writeResults(t, w, []map[string]string{okResult(ops[0].CorrelationID, "pl-new")})
		case "/plentriesbatch":
			results := make([]map[string]string, 0, len(ops))
			for i, op := range ops {
				assert.Equal(t, "pl-new", op.Record[0])
				results = append(results, okResult(op.CorrelationID, fmt.Sprintf("entry-%d", i+1)))
			}
			writeResults(t, w, results)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary("song-a", "song-b")

	playlist, err := engine.CreatePlaylist(
		t.Context(),
		zerolog.Nop(),
		lib,
		"Road Trip",
		"Summer drive",
		[]types.SongID{"song-a", "song-b"},
	)
	require.NoError(t, err)
	assert.Equal(t, types.PlaylistID("pl-new"), playlist.ID)
	assert.Equal(t, "Road Trip", playlist.Title)

	lib.Mux.Lock()
	indexed, ok := lib.Playlists["pl-new"]
	lib.Mux.Unlock()
	require.True(t, ok)
	require.Len(t, indexed.Entries, 2)
	assert.Equal(t, types.SongID("song-a"), indexed.Entries[0].SongID)
	assert.Equal(t, types.SongID("song-b"), indexed.Entries[1].SongID)
}

func TestDeletePlaylist(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/playlistbatch", r.URL.Path)
		ops := decodeBatch(t, r)
		require.Len(t, ops, 1)
		assert.Equal(t, 3, ops[0].Kind)
		writeResults(t, w, []map[string]string{okResult(ops[0].CorrelationID, "pl-1")})
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary()
	lib.Mux.Lock()
	lib.Playlists["pl-1"] = &types.Playlist{ID: "pl-1", Title: "Mix"} //nolint:exhaustruct
	lib.Mux.Unlock()

	id, err := engine.DeletePlaylist(t.Context(), zerolog.Nop(), lib, "pl-1")
	require.NoError(t, err)
	assert.Equal(t, types.PlaylistID("pl-1"), id)

	lib.Mux.Lock()
	_, ok := lib.Playlists["pl-1"]
	lib.Mux.Unlock()
	assert.False(t, ok)
}

func TestDeletePlaylistRejectedLeavesIndexIntact(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ops := decodeBatch(t, r)
		writeResults(t, w, []map[string]string{
			{"correlationId": ops[0].CorrelationID, "code": "DENIED", "id": ""},
		})
	}))
	defer srv.Close()

	engine := newTestEngine(t)
	mutate.SetBaseURL(t, engine, srv.URL)

	lib := newTestLibrary()
	lib.Mux.Lock()
	lib.Playlists["pl-1"] = &types.Playlist{ID: "pl-1", Title: "Mix"} //nolint:exhaustruct
	lib.Mux.Unlock()

	_, err := engine.DeletePlaylist(t.Context(), zerolog.Nop(), lib, "pl-1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "DENIED")

	lib.Mux.Lock()
	_, ok := lib.Playlists["pl-1"]
	lib.Mux.Unlock()
	assert.True(t, ok)
}
