package wire_test

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/skylocker/locker/types"
	"github.com/xeptore/skylocker/locker/wire"
)

const catalogPage = `[
	["a1b2", "Aisles", "The Fold", "First", "Rock", 215000, 3, 1, 5, 1500000000000000, 1500000000000001, false],
	["c3d4", "Brim", "The Fold", "First", "Rock", 198000, 4, 1, 0, 1500000000000002, 1500000000000003, true]
]`

func TestDecodeSongsCatalogVariant(t *testing.T) {
	t.Parallel()

	songs, err := wire.DecodeSongs(zerolog.Nop(), []byte(catalogPage), wire.VariantCatalog)
	require.NoError(t, err)
	require.Len(t, songs, 2)

	assert.Equal(t, types.SongID("a1b2"), songs[0].ID)
	assert.Equal(t, "Aisles", songs[0].Title)
	assert.Equal(t, "The Fold", songs[0].Artist)
	assert.Equal(t, "First", songs[0].Album)
	assert.Equal(t, "Rock", songs[0].Genre)
	assert.Equal(t, int64(215000), songs[0].DurationMillis)
	assert.Equal(t, 3, songs[0].TrackNumber)
	assert.Equal(t, 1, songs[0].DiscNumber)
	assert.Equal(t, 5, songs[0].Rating)
	assert.Equal(t, types.Micros(1500000000000000), songs[0].CreatedAt)
	assert.False(t, songs[0].Deleted)

	assert.Equal(t, types.SongID("c3d4"), songs[1].ID)
	assert.True(t, songs[1].Deleted)
}

func TestDecodeSongsIdempotent(t *testing.T) {
	t.Parallel()

	first, err := wire.DecodeSongs(zerolog.Nop(), []byte(catalogPage), wire.VariantCatalog)
	require.NoError(t, err)
	second, err := wire.DecodeSongs(zerolog.Nop(), []byte(catalogPage), wire.VariantCatalog)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Equal(second[i]))
	}
}

func TestDecodeSongsTruncationTolerance(t *testing.T) {
	t.Parallel()

	full := []any{
		"a1b2", "Aisles", "The Fold", "First", "Rock",
		215000, 3, 1, 5, 1500000000000000, 1500000000000001, false,
	}

	// Any prefix that still carries the identity decodes the known fields and
	// defaults the rest.
	for n := 1; n <= len(full); n++ {
		page := mustJSON(t, []any{full[:n]})
		songs, err := wire.DecodeSongs(zerolog.Nop(), []byte(page), wire.VariantCatalog)
		require.NoErrorf(t, err, "prefix length %d", n)
		require.Lenf(t, songs, 1, "prefix length %d", n)
		assert.Equal(t, types.SongID("a1b2"), songs[0].ID)

		if n > 1 {
			assert.Equal(t, "Aisles", songs[0].Title)
		} else {
			assert.Empty(t, songs[0].Title)
		}
		if n <= 5 {
			assert.Zero(t, songs[0].DurationMillis)
		}
	}
}

func TestDecodeSongsExtendedRecordIgnoresTrailingFields(t *testing.T) {
	t.Parallel()

	page := `[["a1b2", "Aisles", "The Fold", "First", "Rock", 215000, 3, 1, 5, 1, 2, false, "future-field", 42]]`
	songs, err := wire.DecodeSongs(zerolog.Nop(), []byte(page), wire.VariantCatalog)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "Aisles", songs[0].Title)
}

func TestDecodeSongsSkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
		want int
	}{
		{
			name: "non-array record",
			page: `[["a1b2","Aisles"], "bogus", ["c3d4","Brim"]]`,
			want: 2,
		},
		{
			name: "record without identity",
			page: `[["","Aisles"], ["c3d4","Brim"]]`,
			want: 1,
		},
		{
			name: "object record",
			page: `[{"id":"a1b2"}, ["c3d4","Brim"]]`,
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			songs, err := wire.DecodeSongs(zerolog.Nop(), []byte(tt.page), wire.VariantCatalog)
			require.NoError(t, err)
			assert.Len(t, songs, tt.want)
		})
	}
}

func TestRecordsUnwrapsSingletonNesting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
	}{
		{name: "no nesting", page: `[["a1b2","Aisles"],["c3d4","Brim"]]`},
		{name: "one level", page: `[[["a1b2","Aisles"],["c3d4","Brim"]]]`},
		{name: "two levels", page: `[[[["a1b2","Aisles"],["c3d4","Brim"]]]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			songs, err := wire.DecodeSongs(zerolog.Nop(), []byte(tt.page), wire.VariantCatalog)
			require.NoError(t, err)
			require.Len(t, songs, 2)
			assert.Equal(t, types.SongID("a1b2"), songs[0].ID)
			assert.Equal(t, types.SongID("c3d4"), songs[1].ID)
		})
	}
}

func TestRecordsRejectsUnknownShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
	}{
		{name: "invalid json", page: `[[`},
		{name: "object top level", page: `{"records":[]}`},
		{name: "string top level", page: `"records"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := wire.DecodeSongs(zerolog.Nop(), []byte(tt.page), wire.VariantCatalog)
			require.ErrorIs(t, err, wire.ErrProtocol)
		})
	}
}

func TestDecodeFeedVariantPositions(t *testing.T) {
	t.Parallel()

	page := `[["a1b2", true, 1500000000000000, 1500000000000001, "Aisles", "The Fold", "First", 215000]]`
	songs, err := wire.DecodeSongs(zerolog.Nop(), []byte(page), wire.VariantFeed)
	require.NoError(t, err)
	require.Len(t, songs, 1)

	assert.Equal(t, types.SongID("a1b2"), songs[0].ID)
	assert.True(t, songs[0].Deleted)
	assert.Equal(t, types.Micros(1500000000000000), songs[0].CreatedAt)
	assert.Equal(t, "Aisles", songs[0].Title)
	assert.Equal(t, int64(215000), songs[0].DurationMillis)
}

func TestDecodePlaylists(t *testing.T) {
	t.Parallel()

	page := `[["p1", "Morning", null, "quiet starts", "share-tok", 1500000000000000, 1500000000000009]]`
	playlists, err := wire.DecodePlaylists(zerolog.Nop(), []byte(page))
	require.NoError(t, err)
	require.Len(t, playlists, 1)

	assert.Equal(t, types.PlaylistID("p1"), playlists[0].ID)
	assert.Equal(t, "Morning", playlists[0].Title)
	assert.Equal(t, "quiet starts", playlists[0].Description)
	assert.Equal(t, "share-tok", playlists[0].ShareToken)
	assert.Empty(t, playlists[0].Entries)
}

func TestDecodePlaylistEntriesWithEmbeddedSong(t *testing.T) {
	t.Parallel()

	page := `[
		["e1", "a1b2", 1500000000000000, false, ["a1b2", false, 1, 2, "Aisles", "The Fold", "First", 215000]],
		["e2", "a1b2", 1500000000000005, false]
	]`
	entries, err := wire.DecodePlaylistEntries(zerolog.Nop(), []byte(page))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, types.EntryID("e1"), entries[0].ID)
	assert.Equal(t, types.SongID("a1b2"), entries[0].SongID)
	require.NotNil(t, entries[0].Song)
	assert.Equal(t, types.SongID("a1b2"), entries[0].Song.ID)

	// The same song may appear twice; the entries keep distinct identities.
	assert.Equal(t, types.EntryID("e2"), entries[1].ID)
	assert.Equal(t, entries[0].SongID, entries[1].SongID)
	assert.Nil(t, entries[1].Song)
}

func TestMicrosConversionIsDerived(t *testing.T) {
	t.Parallel()

	m := types.Micros(1500000000000000)
	assert.Equal(t, int64(1500000000), m.Time().Unix())
	assert.Equal(t, m, types.MicrosOf(m.Time()))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)

	return string(raw)
}
