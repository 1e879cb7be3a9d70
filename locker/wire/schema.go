// Package wire moves entities between the service's schema-less positional
// array encoding and typed values. Field identity on the wire is determined
// by array index, and the index assignment changes between the full-catalog
// feed and the playlist-content/deleted-song feeds, so every decode goes
// through an explicit per-variant schema table instead of ad-hoc indexing.
package wire

// Variant selects which positional layout a feed's records use.
type Variant int

const (
	// VariantCatalog is the layout of the full-catalog song feed.
	VariantCatalog Variant = iota
	// VariantFeed is the layout of the playlist-content and deleted-song feeds.
	VariantFeed
)

type songField int

const (
	songFieldSkip songField = iota
	songFieldID
	songFieldTitle
	songFieldArtist
	songFieldAlbum
	songFieldGenre
	songFieldDurationMillis
	songFieldTrackNumber
	songFieldDiscNumber
	songFieldRating
	songFieldCreatedAt
	songFieldModifiedAt
	songFieldDeleted
)

// songSchemas maps array index to field per variant. Records shorter than
// the table leave trailing fields at their defaults; records longer than the
// table carry fields appended by newer protocol versions and are ignored.
var songSchemas = map[Variant][]songField{
	VariantCatalog: {
		0:  songFieldID,
		1:  songFieldTitle,
		2:  songFieldArtist,
		3:  songFieldAlbum,
		4:  songFieldGenre,
		5:  songFieldDurationMillis,
		6:  songFieldTrackNumber,
		7:  songFieldDiscNumber,
		8:  songFieldRating,
		9:  songFieldCreatedAt,
		10: songFieldModifiedAt,
		11: songFieldDeleted,
	},
	VariantFeed: {
		0: songFieldID,
		1: songFieldDeleted,
		2: songFieldCreatedAt,
		3: songFieldModifiedAt,
		4: songFieldTitle,
		5: songFieldArtist,
		6: songFieldAlbum,
		7: songFieldDurationMillis,
	},
}

type playlistField int

const (
	playlistFieldSkip playlistField = iota
	playlistFieldID
	playlistFieldTitle
	playlistFieldDescription
	playlistFieldShareToken
	playlistFieldCreatedAt
	playlistFieldModifiedAt
)

var playlistSchema = []playlistField{
	0: playlistFieldID,
	1: playlistFieldTitle,
	2: playlistFieldSkip,
	3: playlistFieldDescription,
	4: playlistFieldShareToken,
	5: playlistFieldCreatedAt,
	6: playlistFieldModifiedAt,
}

type entryField int

const (
	entryFieldSkip entryField = iota
	entryFieldID
	entryFieldSongID
	entryFieldCreatedAt
	entryFieldDeleted
	entryFieldSong
)

var entrySchema = []entryField{
	0: entryFieldID,
	1: entryFieldSongID,
	2: entryFieldCreatedAt,
	3: entryFieldDeleted,
	4: entryFieldSong,
}
