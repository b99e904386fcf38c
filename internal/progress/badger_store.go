// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package progress

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps progress records as JSON under "progress:<principal>\x00<lesson>".
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a badger database in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// NewInMemoryBadgerStore opens a badger database without disk persistence.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(principalID, lessonRef string) []byte {
	return []byte("progress:" + compositeKey(principalID, lessonRef))
}

func (s *BadgerStore) Put(_ context.Context, principalID, lessonRef string, state *State) error {
	buf, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(principalID, lessonRef), buf)
	})
}

func (s *BadgerStore) Get(_ context.Context, principalID, lessonRef string) (*State, error) {
	var out State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(principalID, lessonRef))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) Delete(_ context.Context, principalID, lessonRef string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(principalID, lessonRef))
	})
}

func (s *BadgerStore) Close() error { return s.db.Close() }
