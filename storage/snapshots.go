package storage

import (
	"errors"
	"fmt"
	"strings"
)

const snapshotPrefix = "support/snapshot/"

// ErrSnapshotExists is returned when a snapshot id is reused.
var ErrSnapshotExists = errors.New("storage: snapshot already stored")

// SnapshotStore keeps encoded migration snapshots keyed by migration id.
// Snapshots are write-once.
type SnapshotStore struct {
	db Database
}

func NewSnapshotStore(db Database) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func snapshotKey(id string) ([]byte, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("storage: snapshot id required")
	}
	return []byte(snapshotPrefix + id), nil
}

// PutSnapshot stores data under id.
func (s *SnapshotStore) PutSnapshot(id string, data []byte) error {
	key, err := snapshotKey(id)
	if err != nil {
		return err
	}
	exists, err := s.db.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrSnapshotExists, id)
	}
	return s.db.Put(key, data)
}

// GetSnapshot loads the snapshot stored under id.
func (s *SnapshotStore) GetSnapshot(id string) ([]byte, error) {
	key, err := snapshotKey(id)
	if err != nil {
		return nil, err
	}
	data, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return data, nil
}
