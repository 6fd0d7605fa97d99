// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store persists promise session snapshots
package store

import (
	"sort"
	"strings"

	"github.com/33cn/puzzlepromise/common/db"
	"github.com/33cn/puzzlepromise/common/log"
	"github.com/33cn/puzzlepromise/promise"
	"github.com/33cn/puzzlepromise/types"
	farm "github.com/dgryski/go-farm"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

var slog = log.New("module", "store")

const (
	keyPrefix = "promise-"
	dbName    = "sessions"
	// leveldb cache in MiB
	dbCache = 16
)

// session kinds
const (
	KindRequester = promise.KindRequesterSnapshot
	KindSigner    = promise.KindSignerSnapshot
)

// ErrInvalidSessionID id is not a uuid or kind is unknown
var ErrInvalidSessionID = errors.New("ErrInvalidSessionID")

// Entry one stored session
type Entry struct {
	ID    string
	Kind  string
	State string
}

// SessionStore snapshots keyed by promise-<kind>-<uuid>, snappy compressed on
// disk. Recently used ones are cached decompressed.
type SessionStore struct {
	db    db.DB
	cache *lru.Cache
}

// New opens the configured backend
func New(cfg *types.Store) (*SessionStore, error) {
	if cfg == nil {
		return nil, errors.Wrap(types.ErrInvalidConfig, "nil store config")
	}
	d, err := db.NewDB(dbName, cfg.Driver, cfg.DbPath, dbCache)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store at %s", cfg.Driver, cfg.DbPath)
	}
	s, err := NewWithDB(d, cfg.CacheSize)
	if err != nil {
		d.Close()
		return nil, err
	}
	slog.Info("New", "driver", cfg.Driver, "path", cfg.DbPath)
	return s, nil
}

// NewWithDB store over an opened database
func NewWithDB(d db.DB, cacheSize int) (*SessionStore, error) {
	if cacheSize <= 0 {
		cacheSize = types.DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &SessionStore{db: d, cache: cache}, nil
}

// NewID fresh session id
func NewID() string {
	return uuid.New().String()
}

func sessionKey(kind, id string) ([]byte, error) {
	if kind != KindRequester && kind != KindSigner {
		return nil, errors.Wrapf(ErrInvalidSessionID, "kind %q", kind)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.Wrapf(ErrInvalidSessionID, "id %q", id)
	}
	return []byte(keyPrefix + kind + "-" + id), nil
}

func parseKey(key []byte) (kind, id string, ok bool) {
	rest := strings.TrimPrefix(string(key), keyPrefix)
	for _, k := range []string{KindRequester, KindSigner} {
		if !strings.HasPrefix(rest, k+"-") {
			continue
		}
		id = strings.TrimPrefix(rest, k+"-")
		if _, err := uuid.Parse(id); err != nil {
			return "", "", false
		}
		return k, id, true
	}
	return "", "", false
}

func (s *SessionStore) put(kind, id string, data []byte) error {
	key, err := sessionKey(kind, id)
	if err != nil {
		return err
	}
	if err := s.db.SetSync(key, snappy.Encode(nil, data)); err != nil {
		slog.Error("put", "key", string(key), "err", err)
		return err
	}
	s.cache.Add(cacheKey(key), data)
	return nil
}

type uintkey uint64

func cacheKey(key []byte) uintkey {
	return uintkey(farm.Hash64(key))
}

// Get raw snapshot of a session, the caller owns the returned bytes
func (s *SessionStore) Get(kind, id string) ([]byte, error) {
	key, err := sessionKey(kind, id)
	if err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(cacheKey(key)); ok {
		return db.CopyBytes(v.([]byte)), nil
	}
	compressed, err := s.db.Get(key)
	if err == db.ErrNotFoundInDb {
		return nil, errors.Wrapf(types.ErrNotFound, "session %s %s", kind, id)
	}
	if err != nil {
		return nil, err
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress session %s %s", kind, id)
	}
	s.cache.Add(cacheKey(key), data)
	return db.CopyBytes(data), nil
}

// SaveRequester stores the current snapshot of session
func (s *SessionStore) SaveRequester(id string, session *promise.RequesterSession) error {
	data, err := session.Snapshot()
	if err != nil {
		return err
	}
	return s.put(KindRequester, id, data)
}

// LoadRequester restores a requester session
func (s *SessionStore) LoadRequester(id string, opts ...promise.Option) (*promise.RequesterSession, error) {
	data, err := s.Get(KindRequester, id)
	if err != nil {
		return nil, err
	}
	return promise.RestoreRequesterSession(data, opts...)
}

// SaveSigner stores the current snapshot of session
func (s *SessionStore) SaveSigner(id string, session *promise.SignerSession) error {
	data, err := session.Snapshot()
	if err != nil {
		return err
	}
	return s.put(KindSigner, id, data)
}

// LoadSigner restores a signer session
func (s *SessionStore) LoadSigner(id string, opts ...promise.Option) (*promise.SignerSession, error) {
	data, err := s.Get(KindSigner, id)
	if err != nil {
		return nil, err
	}
	return promise.RestoreSignerSession(data, opts...)
}

// Delete removes a session, deleting a missing one is not an error
func (s *SessionStore) Delete(kind, id string) error {
	key, err := sessionKey(kind, id)
	if err != nil {
		return err
	}
	s.cache.Remove(cacheKey(key))
	return s.db.Delete(key)
}

// List every stored session ordered by kind then id
func (s *SessionStore) List() ([]*Entry, error) {
	keys, err := s.db.PrefixScan([]byte(keyPrefix))
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(keys))
	for _, key := range keys {
		kind, id, ok := parseKey(key)
		if !ok {
			slog.Warn("List skip key", "key", string(key))
			continue
		}
		entry := &Entry{ID: id, Kind: kind}
		data, err := s.Get(kind, id)
		if err != nil {
			return nil, err
		}
		if info, err := promise.ParseSnapshotInfo(data); err == nil {
			entry.State = info.State
		} else {
			slog.Error("List", "id", id, "err", err)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// Close closes the backend
func (s *SessionStore) Close() {
	s.cache.Purge()
	s.db.Close()
}
