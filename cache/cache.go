package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/xeptore/skylocker/locker/types"
)

var (
	DefaultPlaylistEntriesTTL = 5 * time.Minute
	DefaultUploadStatusTTL    = 1 * time.Hour
)

type Cache struct {
	PlaylistEntries PlaylistEntriesCache
	UploadStatus    UploadStatusCache
}

func New() *Cache {
	playlistEntriesCache := ccache.New(
		ccache.Configure[[]types.PlaylistEntry]().
			MaxSize(1000).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	uploadStatusCache := ccache.New(
		ccache.Configure[string]().
			MaxSize(10_000).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	return &Cache{
		PlaylistEntries: PlaylistEntriesCache{
			c:   playlistEntriesCache,
			mux: sync.Mutex{},
		},
		UploadStatus: UploadStatusCache{
			c:   uploadStatusCache,
			mux: sync.Mutex{},
		},
	}
}

// PlaylistEntriesCache holds recently fetched playlist contents so repeated
// content pulls within the TTL skip the paginated feed entirely. Mutations
// against a playlist must invalidate its key.
type PlaylistEntriesCache struct {
	c   *ccache.Cache[[]types.PlaylistEntry]
	mux sync.Mutex
}

func (c *PlaylistEntriesCache) Fetch(
	k string,
	ttl time.Duration,
	fetch func() ([]types.PlaylistEntry, error),
) (*ccache.Item[[]types.PlaylistEntry], error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	v, err := c.c.Fetch(k, ttl, fetch)
	if nil != err {
		return nil, fmt.Errorf("fetch playlist entries: %w", err)
	}

	return v, nil
}

func (c *PlaylistEntriesCache) Delete(k string) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.c.Delete(k)
}

// UploadStatusCache maps client track ids to the remote id the server
// reported for content that matched pre-existing uploads, so re-attempted
// batches skip sampling for tracks already known to exist.
type UploadStatusCache struct {
	c   *ccache.Cache[string]
	mux sync.Mutex
}

func (c *UploadStatusCache) Get(k string) (string, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()

	item := c.c.Get(k)
	if item == nil || item.Expired() {
		return "", false
	}

	return item.Value(), true
}

func (c *UploadStatusCache) Set(k, remoteID string, ttl time.Duration) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.c.Set(k, remoteID, ttl)
}
