package wire

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/xeptore/skylocker/locker/types"
)

// ErrProtocol marks a response whose top-level shape matched no known schema
// variant. It is not retryable; it indicates server-format drift.
var ErrProtocol = errors.New("unrecognized response shape")

// Records extracts the record arrays from a raw feed page. Some feeds wrap
// the record array one or more levels deep in enclosing singleton arrays;
// any leading singleton nesting is unwrapped before indexing.
func Records(raw []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrProtocol)
	}

	node := gjson.ParseBytes(raw)
	if !node.IsArray() {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrProtocol)
	}

	// A singleton whose element holds arrays is a wrapper; a singleton whose
	// element holds scalars is already a one-record page. Record layouts keep
	// a scalar identity in leading position, which keeps this unambiguous.
	for {
		arr := node.Array()
		if len(arr) == 1 && arr[0].IsArray() {
			inner := arr[0].Array()
			if len(inner) == 0 || inner[0].IsArray() {
				node = arr[0]
				continue
			}
		}

		return arr, nil
	}
}

// DecodeSongs decodes a raw feed page into songs under the given variant's
// schema. A malformed record is skipped; it never fails the page.
func DecodeSongs(logger zerolog.Logger, raw []byte, variant Variant) ([]types.Song, error) {
	records, err := Records(raw)
	if nil != err {
		return nil, err
	}

	songs := make([]types.Song, 0, len(records))
	for i, rec := range records {
		song, ok := DecodeSongRecord(rec, variant)
		if !ok {
			logger.Warn().Int("record_index", i).Str("record", rec.Raw).Msg("Skipping malformed song record")
			continue
		}
		songs = append(songs, song)
	}

	return songs, nil
}

// DecodeSongRecord decodes one positional song record. Arrays shorter than
// the schema table leave trailing fields at their defaults. A record that is
// not an array, or that carries no identity, is malformed.
func DecodeSongRecord(rec gjson.Result, variant Variant) (types.Song, bool) {
	var song types.Song
	if !rec.IsArray() {
		return song, false
	}

	schema := songSchemas[variant]
	fields := rec.Array()
	for i, f := range schema {
		if i >= len(fields) {
			break
		}
		v := fields[i]
		switch f {
		case songFieldSkip:
		case songFieldID:
			song.ID = types.SongID(v.String())
		case songFieldTitle:
			song.Title = v.String()
		case songFieldArtist:
			song.Artist = v.String()
		case songFieldAlbum:
			song.Album = v.String()
		case songFieldGenre:
			song.Genre = v.String()
		case songFieldDurationMillis:
			song.DurationMillis = v.Int()
		case songFieldTrackNumber:
			song.TrackNumber = int(v.Int())
		case songFieldDiscNumber:
			song.DiscNumber = int(v.Int())
		case songFieldRating:
			song.Rating = int(v.Int())
		case songFieldCreatedAt:
			song.CreatedAt = types.Micros(v.Int())
		case songFieldModifiedAt:
			song.ModifiedAt = types.Micros(v.Int())
		case songFieldDeleted:
			song.Deleted = v.Bool()
		}
	}

	if song.ID == "" {
		return song, false
	}

	return song, true
}

// DecodePlaylists decodes a raw playlist feed page. Entry lists are not part
// of the playlist feed; they come from the per-playlist contents feed.
func DecodePlaylists(logger zerolog.Logger, raw []byte) ([]types.Playlist, error) {
	records, err := Records(raw)
	if nil != err {
		return nil, err
	}

	playlists := make([]types.Playlist, 0, len(records))
	for i, rec := range records {
		playlist, ok := DecodePlaylistRecord(rec)
		if !ok {
			logger.Warn().Int("record_index", i).Str("record", rec.Raw).Msg("Skipping malformed playlist record")
			continue
		}
		playlists = append(playlists, playlist)
	}

	return playlists, nil
}

func DecodePlaylistRecord(rec gjson.Result) (types.Playlist, bool) {
	var playlist types.Playlist
	if !rec.IsArray() {
		return playlist, false
	}

	fields := rec.Array()
	for i, f := range playlistSchema {
		if i >= len(fields) {
			break
		}
		v := fields[i]
		switch f {
		case playlistFieldSkip:
		case playlistFieldID:
			playlist.ID = types.PlaylistID(v.String())
		case playlistFieldTitle:
			playlist.Title = v.String()
		case playlistFieldDescription:
			playlist.Description = v.String()
		case playlistFieldShareToken:
			playlist.ShareToken = v.String()
		case playlistFieldCreatedAt:
			playlist.CreatedAt = types.Micros(v.Int())
		case playlistFieldModifiedAt:
			playlist.ModifiedAt = types.Micros(v.Int())
		}
	}

	if playlist.ID == "" {
		return playlist, false
	}

	return playlist, true
}

// DecodePlaylistEntries decodes a playlist-contents feed page. An entry may
// carry an embedded copy of its song in feed layout; identity of the copy
// stays the song's own.
func DecodePlaylistEntries(logger zerolog.Logger, raw []byte) ([]types.PlaylistEntry, error) {
	records, err := Records(raw)
	if nil != err {
		return nil, err
	}

	entries := make([]types.PlaylistEntry, 0, len(records))
	for i, rec := range records {
		entry, ok := DecodeEntryRecord(rec)
		if !ok {
			logger.Warn().Int("record_index", i).Str("record", rec.Raw).Msg("Skipping malformed playlist entry record")
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func DecodeEntryRecord(rec gjson.Result) (types.PlaylistEntry, bool) {
	var entry types.PlaylistEntry
	if !rec.IsArray() {
		return entry, false
	}

	fields := rec.Array()
	for i, f := range entrySchema {
		if i >= len(fields) {
			break
		}
		v := fields[i]
		switch f {
		case entryFieldSkip:
		case entryFieldID:
			entry.ID = types.EntryID(v.String())
		case entryFieldSongID:
			entry.SongID = types.SongID(v.String())
		case entryFieldCreatedAt:
			entry.CreatedAt = types.Micros(v.Int())
		case entryFieldDeleted:
			entry.Deleted = v.Bool()
		case entryFieldSong:
			if song, ok := DecodeSongRecord(v, VariantFeed); ok {
				entry.Song = &song
			}
		}
	}

	if entry.ID == "" || entry.SongID == "" {
		return entry, false
	}

	return entry, true
}
