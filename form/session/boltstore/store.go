// Package boltstore keeps sessions in a bbolt file, one JSON value per
// conversation in the "sessions" bucket.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/m3rciful/formbot/form/session"
)

var bucket = []byte("sessions")

// Store implements session.Store on top of a shared bbolt database.
type Store struct {
	db *bolt.DB
}

// New creates the bucket if needed.
func New(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Get loads the session for id.
func (s *Store) Get(_ context.Context, id string) (*session.Session, error) {
	var out *session.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(id))
		if v == nil {
			return session.ErrNotFound
		}
		// v is only valid inside the transaction; Unmarshal copies it.
		var sess session.Session
		if err := json.Unmarshal(v, &sess); err != nil {
			return fmt.Errorf("boltstore: decode %s: %w", id, err)
		}
		out = &sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put writes s. The commit is fsynced before Put returns.
func (s *Store) Put(_ context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("boltstore: encode %s: %w", sess.ConversationID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(sess.ConversationID), data)
	})
}

// Delete removes id. Missing keys are not an error in bbolt.
func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(id))
	})
}

// List returns every stored conversation id in key order.
func (s *Store) List(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}
