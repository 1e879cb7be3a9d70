package mutate

import "testing"

func SetBaseURL(t *testing.T, e *Engine, base string) {
	t.Helper()
	e.baseURL = base
}
