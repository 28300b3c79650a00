// Package storage is the key-value layer under engine snapshots: an
// in-memory map for tests and LevelDB for the daemon.
package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("storage: key not found")

// Entry is one key-value pair of a batch.
type Entry struct {
	Key   []byte
	Value []byte
}

// Database stores opaque values. WriteBatch applies all entries or none.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	WriteBatch(entries ...Entry) error
	Close()
}

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key, value []byte) error {
	return db.WriteBatch(Entry{Key: key, Value: value})
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

// WriteBatch stores copies of every entry under one lock.
func (db *MemDB) WriteBatch(entries ...Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, e := range entries {
		db.data[string(e.Key)] = append([]byte(nil), e.Value...)
	}
	return nil
}

func (db *MemDB) Close() {}

// LevelDB persists to a directory. Writes are synced.
type LevelDB struct {
	db *leveldb.DB
	wo *opt.WriteOptions
}

// NewLevelDB creates or opens the database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db, wo: &opt.WriteOptions{Sync: true}}, nil
}

func (ldb *LevelDB) Put(key, value []byte) error {
	return ldb.db.Put(key, value, ldb.wo)
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, ldb.wo)
}

// WriteBatch commits entries in one leveldb.Batch.
func (ldb *LevelDB) WriteBatch(entries ...Entry) error {
	batch := new(leveldb.Batch)
	for _, e := range entries {
		batch.Put(e.Key, e.Value)
	}
	return ldb.db.Write(batch, ldb.wo)
}

func (ldb *LevelDB) Close() {
	_ = ldb.db.Close()
}
