package store

import (
	"github.com/dgraph-io/badger/v4"
)

const ttSnapshotKey = "tt_snapshot"

// snapshotter is the subset of *engine.TranspositionTable this
// package depends on; satisfied by encoding.BinaryMarshaler/
// BinaryUnmarshaler.
type snapshotter interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// Store wraps a Badger database used to persist a transposition table
// snapshot across process restarts. It is opt-in: the in-memory table
// in internal/engine remains authoritative during a single
// select_move call, per the concurrency model's single-owner rule.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the snapshot database at the
// platform-specific data directory.
func Open() (*Store, error) {
	dir, err := GetTTDir()
	if err != nil {
		return nil, err
	}
	return OpenAt(dir)
}

// OpenAt opens the snapshot database at an explicit directory, for
// tests and alternate deployments.
func OpenAt(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveTT snapshots the occupied entries of tt to disk.
func (s *Store) SaveTT(tt snapshotter) error {
	data, err := tt.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(ttSnapshotKey), data)
	})
}

// LoadTT restores a previously saved snapshot into tt. It is a no-op,
// returning nil, if no snapshot has been saved yet.
func (s *Store) LoadTT(tt snapshotter) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ttSnapshotKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return tt.UnmarshalBinary(val)
		})
	})
}
