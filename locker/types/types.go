package types

import (
	"fmt"
	"time"
)

type (
	SongID     string
	PlaylistID string
	EntryID    string
)

// Micros is a point in time expressed as microseconds since the Unix epoch,
// the service's native timestamp representation. Calendar conversion is
// derived, never stored.
type Micros int64

func (m Micros) Time() time.Time {
	return time.UnixMicro(int64(m)).UTC()
}

func MicrosOf(t time.Time) Micros {
	return Micros(t.UnixMicro())
}

// Song identity is the server-assigned remote id. Descriptive fields are
// mutable; equality is by identity only.
type Song struct {
	ID             SongID
	Title          string
	Artist         string
	Album          string
	Genre          string
	TrackNumber    int
	DiscNumber     int
	DurationMillis int64
	Rating         int
	CreatedAt      Micros
	ModifiedAt     Micros
	Deleted        bool
}

func (s Song) Equal(o Song) bool {
	return s.ID == o.ID
}

// PlaylistEntry joins a playlist and a song. It carries its own identity
// since the same song can appear multiple times in one playlist and
// reorder/removal operations address entries, not songs.
type PlaylistEntry struct {
	ID        EntryID
	SongID    SongID
	Song      *Song
	CreatedAt Micros
	Deleted   bool
}

type Playlist struct {
	ID          PlaylistID
	Title       string
	Description string
	ShareToken  string
	CreatedAt   Micros
	ModifiedAt  Micros
	Entries     []PlaylistEntry
}

// PartialError reports an operation that failed after producing usable
// results. The operation's value return carries whatever succeeded.
type PartialError struct {
	Cause error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("operation partially succeeded: %v", e.Cause)
}

func (e *PartialError) Unwrap() error {
	return e.Cause
}

func Partial(cause error) *PartialError {
	return &PartialError{Cause: cause}
}
