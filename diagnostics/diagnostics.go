// Package diagnostics keeps a durable forensics log of snapshot open/close
// outcomes: a single bucket keyed by time, JSON-valued records.
//
// A close failure is otherwise only visible to the immediate caller, with
// no independent programmatic signal. This package is a side channel a
// host can consult (or alert on) independently of the synchronous error
// return, without changing the facade's own synchronous contract.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("snapshot_events")

// Event records one open or close attempt against a fork database snapshot
// file.
type Event struct {
	Time        time.Time `json:"time"`
	Operation   string    `json:"operation"` // "open" or "close"
	Path        string    `json:"path"`
	MagicNumber uint32    `json:"magic_number"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}

// Log is a small append-only store of Events backed by a bbolt file,
// independent of the fork database's own snapshot file.
type Log struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the diagnostics database at path.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open diagnostics log: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create diagnostics bucket: %w", err)
	}
	return &Log{db: db}, nil
}

// Record appends ev, keyed by its timestamp in nanoseconds so iteration
// order matches occurrence order.
func (l *Log) Record(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal diagnostics event: %w", err)
	}
	key := []byte(fmt.Sprintf("%020d", ev.Time.UnixNano()))
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, data)
	})
}

// RecordOpen records a snapshot open attempt's outcome.
func (l *Log) RecordOpen(t time.Time, path string, magic uint32, err error) error {
	ev := Event{Time: t, Operation: "open", Path: path, MagicNumber: magic, Success: err == nil}
	if err != nil {
		ev.Error = err.Error()
	}
	return l.Record(ev)
}

// RecordClose records a snapshot close attempt's outcome.
func (l *Log) RecordClose(t time.Time, path string, magic uint32, err error) error {
	ev := Event{Time: t, Operation: "close", Path: path, MagicNumber: magic, Success: err == nil}
	if err != nil {
		ev.Error = err.Error()
	}
	return l.Record(ev)
}

// Recent returns up to n most recent events, newest first.
func (l *Log) Recent(n int) ([]Event, error) {
	var events []Event
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Last(); k != nil && len(events) < n; k, v = c.Prev() {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshal diagnostics event: %w", err)
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

// Close releases the underlying bbolt file handle.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
