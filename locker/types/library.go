package types

import (
	"sync"
)

// Library is the in-memory catalog index, the only long-lived shared mutable
// state in the client. Fetch and mutation code locks Mux only around the
// merge/apply step, never around network I/O or decoding.
type Library struct {
	Mux       sync.Mutex
	Songs     map[SongID]Song
	Playlists map[PlaylistID]*Playlist
}

func NewLibrary() *Library {
	return &Library{
		Mux:       sync.Mutex{},
		Songs:     make(map[SongID]Song),
		Playlists: make(map[PlaylistID]*Playlist),
	}
}

func (l *Library) MergeSongs(songs []Song) {
	l.Mux.Lock()
	defer l.Mux.Unlock()
	for _, s := range songs {
		l.Songs[s.ID] = s
	}
}

func (l *Library) MergePlaylists(playlists []Playlist) {
	l.Mux.Lock()
	defer l.Mux.Unlock()
	for _, p := range playlists {
		existing, ok := l.Playlists[p.ID]
		if ok {
			// Keep already-fetched entries when the playlist row is refreshed.
			p.Entries = existing.Entries
		}
		l.Playlists[p.ID] = &p
	}
}

func (l *Library) RemoveSongs(ids []SongID) {
	l.Mux.Lock()
	defer l.Mux.Unlock()
	for _, id := range ids {
		delete(l.Songs, id)
	}
}

func (l *Library) RemovePlaylist(id PlaylistID) {
	l.Mux.Lock()
	defer l.Mux.Unlock()
	delete(l.Playlists, id)
}

func (l *Library) HasSong(id SongID) bool {
	l.Mux.Lock()
	defer l.Mux.Unlock()
	_, ok := l.Songs[id]
	return ok
}

func (l *Library) SongCount() int {
	l.Mux.Lock()
	defer l.Mux.Unlock()
	return len(l.Songs)
}
