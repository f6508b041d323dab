// Package boltlog stores application records in the "applications" bucket
// of a bbolt file.
package boltlog

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/m3rciful/formbot/form/record"
)

var bucket = []byte("applications")

// Log implements record.Log.
type Log struct {
	db *bolt.DB
}

// New creates the bucket if needed.
func New(db *bolt.DB) (*Log, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltlog: create bucket: %w", err)
	}
	return &Log{db: db}, nil
}

// Append writes r unless its id is already present.
func (l *Log) Append(_ context.Context, r record.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("boltlog: encode %s: %w", r.ID, err)
	}
	err = l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(r.ID)) != nil {
			return nil
		}
		return b.Put([]byte(r.ID), data)
	})
	if err != nil {
		return fmt.Errorf("boltlog: append %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the record stored under id.
func (l *Log) Get(_ context.Context, id string) (record.Record, error) {
	var out record.Record
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(id))
		if v == nil {
			return record.ErrNotFound
		}
		return json.Unmarshal(v, &out)
	})
	return out, err
}

// List decodes every record and returns the newest limit of them.
func (l *Log) List(_ context.Context, limit int) ([]record.Record, error) {
	var out []record.Record
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var r record.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("boltlog: decode %s: %w", k, err)
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return record.Newest(out, limit), nil
}
