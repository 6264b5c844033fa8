package station

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/scangate/internal/gate"
	"github.com/zombor/scangate/internal/scanapi"
)

const historyBucketName = "history"

// HistoryEntry is one capture outcome as seen by this station. The station's history is a
// local convenience and is never consulted for totals or duplicate decisions.
type HistoryEntry struct {
	ID                string              `json:"id"`
	At                time.Time           `json:"at"`
	Phase             gate.Phase          `json:"phase"`
	Source            scanapi.ScannerType `json:"source"`
	Payload           string              `json:"payload,omitempty"`
	Strategy          string              `json:"strategy,omitempty"`
	ErrorKind         gate.ErrorKind      `json:"error_kind,omitempty"`
	Message           string              `json:"message,omitempty"`
	OriginalScannedBy string              `json:"original_scanned_by,omitempty"`
	CaptureFile       string              `json:"capture_file,omitempty"`
	ContentType       string              `json:"content_type,omitempty"`
}

// History defines the interface for the station's capture log
type History interface {
	// Record appends an entry. IDs must sort in recording order.
	Record(entry *HistoryEntry) error

	// Get retrieves an entry by ID
	Get(id string) (*HistoryEntry, error)

	// List returns up to limit entries, newest first. A limit of zero returns all.
	List(limit int) ([]*HistoryEntry, error)

	// Prune removes all but the newest keep entries and returns the removed ones
	Prune(keep int) ([]*HistoryEntry, error)

	// Close closes the database connection
	Close() error
}

// BoltHistory implements History using BoltDB
type BoltHistory struct {
	db *bbolt.DB
}

// NewBoltHistory creates a new BoltHistory instance
func NewBoltHistory(path string) (*BoltHistory, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(historyBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltHistory{db: db}, nil
}

// Record saves an entry keyed by its ID
func (b *BoltHistory) Record(entry *HistoryEntry) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucketName))
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		return bucket.Put([]byte(entry.ID), data)
	})
}

// Get retrieves an entry by ID
func (b *BoltHistory) Get(id string) (*HistoryEntry, error) {
	var entry *HistoryEntry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("entry not found: %s", id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List walks the bucket backwards so the newest entries come first
func (b *BoltHistory) List(limit int) ([]*HistoryEntry, error) {
	entries := make([]*HistoryEntry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(historyBucketName)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var entry HistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Prune deletes the oldest entries beyond keep in a single transaction
func (b *BoltHistory) Prune(keep int) ([]*HistoryEntry, error) {
	if keep < 0 {
		keep = 0
	}
	var removed []*HistoryEntry
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucketName))
		var stale [][]byte
		c := bucket.Cursor()
		kept := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if kept < keep {
				kept++
				continue
			}
			var entry HistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			stale = append(stale, append([]byte(nil), k...))
			removed = append(removed, &entry)
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("deleting entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Close closes the database connection
func (b *BoltHistory) Close() error {
	return b.db.Close()
}
