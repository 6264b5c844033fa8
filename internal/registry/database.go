package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/scangate/internal/scanapi"
)

var kindBuckets = map[scanapi.Kind]string{
	scanapi.KindQR:       "qr_scans",
	scanapi.KindEmployee: "employee_scans",
}

// DB defines the interface for scan storage
type DB interface {
	// RecordScan stores scan unless its payload was already recorded for the same kind.
	// It returns the earlier scan when one exists, and nothing is written in that case.
	RecordScan(scan *Scan) (*Scan, error)

	// CountScans returns how many scans of kind were taken at or after since, and in total
	CountScans(kind scanapi.Kind, since time.Time) (int, int, error)

	// ListScans returns all scans of kind
	ListScans(kind scanapi.Kind) ([]*Scan, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB. Scans are keyed by payload so
// the lookup and the insert happen in the same write transaction.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range kindBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func bucketFor(tx *bbolt.Tx, kind scanapi.Kind) (*bbolt.Bucket, error) {
	name, ok := kindBuckets[kind]
	if !ok {
		return nil, fmt.Errorf("unknown scan kind: %q", kind)
	}
	return tx.Bucket([]byte(name)), nil
}

// RecordScan stores scan if its payload is new
func (b *BoltDB) RecordScan(scan *Scan) (*Scan, error) {
	var existing *Scan
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketFor(tx, scan.Kind)
		if err != nil {
			return err
		}

		key := []byte(scan.QRData)
		if data := bucket.Get(key); data != nil {
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("unmarshaling scan: %w", err)
			}
			return nil
		}

		data, err := json.Marshal(scan)
		if err != nil {
			return fmt.Errorf("marshaling scan: %w", err)
		}
		return bucket.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// CountScans counts scans of kind
func (b *BoltDB) CountScans(kind scanapi.Kind, since time.Time) (int, int, error) {
	var recent, total int
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketFor(tx, kind)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var scan Scan
			if err := json.Unmarshal(v, &scan); err != nil {
				return fmt.Errorf("unmarshaling scan: %w", err)
			}
			total++
			if !scan.ScanTimestamp.Before(since) {
				recent++
			}
			return nil
		})
	})
	if err != nil {
		return 0, 0, err
	}
	return recent, total, nil
}

// ListScans returns all scans of kind ordered by payload
func (b *BoltDB) ListScans(kind scanapi.Kind) ([]*Scan, error) {
	scans := make([]*Scan, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketFor(tx, kind)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var scan Scan
			if err := json.Unmarshal(v, &scan); err != nil {
				return fmt.Errorf("unmarshaling scan: %w", err)
			}
			scans = append(scans, &scan)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return scans, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
