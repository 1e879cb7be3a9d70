package auth

import "testing"

func SetTokenURL(t *testing.T, a *Auth, u string) {
	t.Helper()
	a.tokenURL = u
}

func SetCredentials(t *testing.T, a *Auth, creds *Credentials) {
	t.Helper()
	a.credentials.Store(creds)
}

func NewSessionID(t *testing.T) string {
	t.Helper()
	return newSessionID()
}
