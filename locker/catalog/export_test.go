package catalog

import "testing"

func SetFeedURLs(t *testing.T, s *Sync, base string) {
	t.Helper()
	s.baseURL = base
}
