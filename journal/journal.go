// Package journal keeps a best-effort record of submitted jobs in a BoltDB
// database. The completion flag in the output tree stays the only
// idempotency marker; the journal is for operators.
package journal

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/beamline/autoproc/util/fsutil"
	"github.com/boltdb/bolt"
	"github.com/rs/xid"
)

// SubmissionBucket maps entry ID -> Entry JSON.
// IDs are xids, so keys sort by submission time.
var SubmissionBucket = []byte("submissions")

// Entry describes one submitted job.
type Entry struct {
	ID          string    `json:"id"`
	Folder      string    `json:"folder"`
	Pipeline    string    `json:"pipeline"`
	JobName     string    `json:"jobName"`
	Script      string    `json:"script"`
	Partition   string    `json:"partition"`
	Reservation string    `json:"reservation,omitempty"`
	Profile     string    `json:"profile"`
	JobID       string    `json:"jobId"`
	Relay       string    `json:"relay,omitempty"`
	Submitted   time.Time `json:"submitted"`
}

// Journal is a submission journal backed by BoltDB.
type Journal struct {
	db *bolt.DB
}

// Open opens, or creates, the journal at path.
func Open(path string) (*Journal, error) {
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: time.Second * 5,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(SubmissionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// OpenReadOnly opens an existing journal for reading. It times out while a
// running scanner holds the journal.
func OpenReadOnly(path string) (*Journal, error) {
	if !fsutil.Exists(path) {
		return nil, fmt.Errorf("no journal at %s", path)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:  time.Second,
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Record stores e. A missing ID or submission time is filled in.
func (j *Journal) Record(e *Entry) error {
	if e.Submitted.IsZero() {
		e.Submitted = time.Now()
	}
	if e.ID == "" {
		e.ID = xid.NewWithTime(e.Submitted).String()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(SubmissionBucket).Put([]byte(e.ID), b)
	})
}

// Get returns the entry with the given ID.
func (j *Journal) Get(id string) (*Entry, error) {
	var e *Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(SubmissionBucket)
		if bkt == nil {
			return fmt.Errorf("no journal entry %s", id)
		}
		b := bkt.Get([]byte(id))
		if b == nil {
			return fmt.Errorf("no journal entry %s", id)
		}
		e = &Entry{}
		return json.Unmarshal(b, e)
	})
	return e, err
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (j *Journal) List(limit int) ([]*Entry, error) {
	var entries []*Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(SubmissionBucket)
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			e := &Entry{}
			if err := json.Unmarshal(v, e); err != nil {
				return fmt.Errorf("decoding entry %s: %w", k, err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
