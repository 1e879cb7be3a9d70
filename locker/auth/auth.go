package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xeptore/skylocker/config"
	"github.com/xeptore/skylocker/httputil"
	"github.com/xeptore/skylocker/store"
)

const (
	oauthTokenURL = "https://accounts.skylocker.io/o/oauth2/token"
	oauthScope    = "https://skylocker.io/auth/musiclocker"

	sessionIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	sessionIDLength   = 12
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLoginRequired = errors.New("login required")
)

// Credentials pair the OAuth access/refresh tokens with the cookie-session
// identifier the catalog and mutation endpoints require. The two are
// orthogonal: both must be present for the client to count as authenticated.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SessionID    string
}

type Auth struct {
	conf        config.Locker
	transport   *httputil.Transport
	store       *store.Store
	tokenURL    string
	credentials atomic.Pointer[Credentials]
}

func New(
	ctx context.Context,
	conf config.Locker,
	transport *httputil.Transport,
	st *store.Store,
) (*Auth, error) {
	creds := &Credentials{
		AccessToken:  "",
		RefreshToken: "",
		ExpiresAt:    time.Time{},
		SessionID:    "",
	}
	if st != nil {
		rec, err := st.LoadCredentials(ctx)
		if nil != err {
			return nil, fmt.Errorf("failed to load persisted credentials: %v", err)
		}
		if rec != nil {
			creds = &Credentials{
				AccessToken:  rec.AccessToken,
				RefreshToken: rec.RefreshToken,
				ExpiresAt:    time.Unix(rec.ExpiresAt, 0).UTC(),
				SessionID:    rec.SessionID,
			}
		}
	}

	a := &Auth{
		conf:        conf,
		transport:   transport,
		store:       st,
		tokenURL:    oauthTokenURL,
		credentials: atomic.Pointer[Credentials]{},
	}
	a.credentials.Store(creds)

	return a, nil
}

func (a *Auth) Credentials() *Credentials {
	return a.credentials.Load()
}

// IsAuthenticated requires both a refresh token and the companion cookie
// session id; an expired access token alone does not fail the check since
// renewal can recover it.
func (a *Auth) IsAuthenticated() bool {
	creds := a.credentials.Load()
	return creds.RefreshToken != "" && creds.SessionID != ""
}

func (a *Auth) persist(ctx context.Context, creds *Credentials) error {
	if a.store == nil {
		return nil
	}

	rec := store.Record{
		RefreshToken: creds.RefreshToken,
		AccessToken:  creds.AccessToken,
		ExpiresAt:    creds.ExpiresAt.Unix(),
		SessionID:    creds.SessionID,
	}
	if err := a.store.StoreCredentials(ctx, rec); nil != err {
		return fmt.Errorf("failed to persist credentials: %v", err)
	}

	return nil
}

func newSessionID() string {
	raw := make([]byte, sessionIDLength)
	if _, err := rand.Read(raw); nil != err {
		panic("failed to read random bytes: " + err.Error())
	}

	id := make([]byte, sessionIDLength)
	for i, b := range raw {
		id[i] = sessionIDAlphabet[int(b)%len(sessionIDAlphabet)]
	}

	return string(id)
}
