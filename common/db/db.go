// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package db key/value 存储后端
package db

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFoundInDb key 不存在
var ErrNotFoundInDb = errors.New("ErrNotFoundInDb")

// DB key/value 数据库接口
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key []byte, value []byte) error
	// SetSync waits for the write to reach stable storage
	SetSync(key []byte, value []byte) error
	Delete(key []byte) error
	// PrefixScan returns the keys with the given prefix, in key order
	PrefixScan(prefix []byte) ([][]byte, error)
	Close()
}

// backend names
const (
	LevelDBBackendStr    = "leveldb" // legacy, defaults to goleveldb.
	GoLevelDBBackendStr  = "goleveldb"
	MemDBBackendStr      = "memdb"
	GoBadgerDBBackendStr = "gobadgerdb"
)

type dbCreator func(name string, dir string, cache int) (DB, error)

var (
	backends   = map[string]dbCreator{}
	backendsMu sync.Mutex
)

func registerDBCreator(backend string, creator dbCreator, force bool) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	_, ok := backends[backend]
	if !force && ok {
		return
	}
	backends[backend] = creator
}

// NewDB 根据后端名称创建数据库
func NewDB(name string, backend string, dir string, cache int) (DB, error) {
	backendsMu.Lock()
	creator, ok := backends[backend]
	backendsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown db backend %q", backend)
	}
	return creator(name, dir, cache)
}

// CopyBytes copy bytes
func CopyBytes(b []byte) (copiedBytes []byte) {
	if b == nil {
		return nil
	}
	copiedBytes = make([]byte, len(b))
	copy(copiedBytes, b)
	return copiedBytes
}
