package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"
)

var (
	credsBucketName = []byte("credentials")
	credsKeyName    = []byte("credentials")
	deviceKeyName   = []byte("device_id")
)

// Record is the persisted credential set: everything needed to resume a
// session across process restarts without re-running the authorization flow.
type Record struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	ExpiresAt    int64  `json:"expires_at"`
	SessionID    string `json:"session_id"`
}

type Store struct {
	db *bbolt.DB
}

func New(path string) (*Store, error) {
	opts := &bbolt.Options{ //nolint:exhaustruct
		NoFreelistSync: true,
		ReadOnly:       false,
		Timeout:        1 * time.Second,
		NoGrowSync:     false,
		FreelistType:   bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(path, 0o600, opts)
	if nil != err {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := createBuckets(db); nil != err {
		return nil, fmt.Errorf("failed to create buckets: %v", err)
	}

	return &Store{db: db}, nil
}

func createBuckets(db *bbolt.DB) error {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credsBucketName)
		if nil != err {
			return fmt.Errorf("failed to create credentials bucket: %v", err)
		}

		return nil
	})
	if nil != err {
		return fmt.Errorf("failed to create buckets: %v", err)
	}

	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); nil != err {
		return fmt.Errorf("failed to close database: %v", err)
	}

	return nil
}

func (s *Store) LoadCredentials(_ context.Context) (*Record, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw = tx.Bucket(credsBucketName).Get(credsKeyName)
		return nil
	})
	if nil != err {
		return nil, fmt.Errorf("failed to load credentials: %v", err)
	}

	if raw == nil {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); nil != err {
		return nil, fmt.Errorf("failed to decode credentials record: %v", err)
	}

	return &rec, nil
}

func (s *Store) StoreCredentials(_ context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if nil != err {
		return fmt.Errorf("failed to encode credentials record: %v", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(credsBucketName).Put(credsKeyName, raw); nil != err {
			return fmt.Errorf("failed to store credentials: %v", err)
		}

		return nil
	})
	if nil != err {
		return fmt.Errorf("failed to store credentials: %v", err)
	}

	return nil
}

func (s *Store) DeleteCredentials(_ context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(credsBucketName).Delete(credsKeyName); nil != err {
			return fmt.Errorf("failed to delete credentials: %v", err)
		}

		return nil
	})
	if nil != err {
		return fmt.Errorf("failed to delete credentials: %v", err)
	}

	return nil
}

func (s *Store) LoadDeviceID(_ context.Context) (string, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw = tx.Bucket(credsBucketName).Get(deviceKeyName)
		return nil
	})
	if nil != err {
		return "", fmt.Errorf("failed to load device id: %v", err)
	}

	return string(raw), nil
}

func (s *Store) StoreDeviceID(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(credsBucketName).Put(deviceKeyName, []byte(id)); nil != err {
			return fmt.Errorf("failed to store device id: %v", err)
		}

		return nil
	})
	if nil != err {
		return fmt.Errorf("failed to store device id: %v", err)
	}

	return nil
}
