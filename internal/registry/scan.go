// Package registry is a reference implementation of the portal's scan recording
// endpoints. It records each payload once and reports later submissions as duplicates.
package registry

import (
	"time"

	"github.com/zombor/scangate/internal/scanapi"
)

// Scan is one recorded scan of a payload
type Scan struct {
	ID            string             `json:"id"`
	Kind          scanapi.Kind       `json:"kind"`
	QRData        string             `json:"qr_data"`
	ScanTimestamp time.Time          `json:"scan_timestamp"`
	ScannedBy     string             `json:"scanned_by"`
	ScannerType   string             `json:"scanner_type"`
	DeviceInfo    scanapi.DeviceInfo `json:"device_info"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Existing is the duplicate-warning view of s
func (s *Scan) Existing() *scanapi.ExistingScan {
	return &scanapi.ExistingScan{
		ScanTimestamp: s.ScanTimestamp,
		ScannedBy:     s.ScannedBy,
	}
}
