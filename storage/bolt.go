package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// BackendLevelDB stores snapshots in a LevelDB directory.
	BackendLevelDB = "leveldb"
	// BackendBolt stores snapshots in a single BoltDB file inside the
	// directory.
	BackendBolt = "bolt"

	boltFileName = "snapshots.db"
)

var boltBucket = []byte("supportstake")

// BoltDB is a persistent key-value store in a single BoltDB file.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens or creates the BoltDB file at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Put(key []byte, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

// Get copies the value out of the read transaction.
func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(boltBucket).Get(key)
		if value == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), value...)
		return nil
	})
	return out, err
}

func (b *BoltDB) Has(key []byte) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(boltBucket).Get(key) != nil
		return nil
	})
	return found, err
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

// Open returns the database for backend rooted at dir. An empty dir keeps
// everything in memory.
func Open(backend, dir string) (Database, error) {
	if strings.TrimSpace(dir) == "" {
		return NewMemDB(), nil
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendLevelDB:
		return NewLevelDB(dir)
	case BackendBolt:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return NewBoltDB(filepath.Join(dir, boltFileName))
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
