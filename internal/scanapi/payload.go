// Package scanapi is the client side of the portal's scan recording endpoints.
package scanapi

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Kind selects which scan endpoint family a client talks to
type Kind string

const (
	KindQR       Kind = "qr"
	KindEmployee Kind = "employee"
)

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindQR:
		return KindQR, nil
	case KindEmployee:
		return KindEmployee, nil
	}
	return "", errors.New("scan kind must be 'qr' or 'employee'")
}

// ScansPath is the submission endpoint for k
func (k Kind) ScansPath() string {
	if k == KindEmployee {
		return "/api/employee-scans"
	}
	return "/api/qr-scans"
}

// StatsPath is the statistics endpoint for k
func (k Kind) StatsPath() string {
	return k.ScansPath() + "/stats"
}

// ScannerType labels the capture surface that produced a payload
type ScannerType string

const (
	ScannerMobileCamera ScannerType = "mobile_camera"
	ScannerFileUpload   ScannerType = "file_upload"
)

// ErrEmptyPayload is returned when a payload would carry no text
var ErrEmptyPayload = errors.New("empty scan payload")

// Payload is a decoded QR string plus its capture context
type Payload struct {
	RawText     string      `json:"raw_text"`
	CapturedAt  time.Time   `json:"captured_at"`
	ScannerType ScannerType `json:"scanner_type"`
}

// NewPayload builds a Payload, rejecting empty text
func NewPayload(rawText string, scannerType ScannerType, capturedAt time.Time) (Payload, error) {
	if rawText == "" {
		return Payload{}, ErrEmptyPayload
	}
	if scannerType == "" {
		scannerType = ScannerFileUpload
	}
	return Payload{
		RawText:     rawText,
		CapturedAt:  capturedAt,
		ScannerType: scannerType,
	}, nil
}

// DeviceInfo describes the capture station for server-side audit
type DeviceInfo struct {
	UserAgent    string `json:"userAgent"`
	Platform     string `json:"platform"`
	Language     string `json:"language"`
	ScreenWidth  *int   `json:"screenWidth,omitempty"`
	ScreenHeight *int   `json:"screenHeight,omitempty"`
}

// SubmitRequest is the wire body of a scan submission
type SubmitRequest struct {
	QRData        string     `json:"qr_data"`
	ScanTimestamp string     `json:"scan_timestamp"`
	ScannerType   string     `json:"scanner_type"`
	DeviceInfo    DeviceInfo `json:"device_info"`
}

// ExistingScan identifies the original scan of a duplicate payload
type ExistingScan struct {
	ScanTimestamp time.Time `json:"scan_timestamp"`
	ScannedBy     string    `json:"scanned_by"`

	// RawTimestamp holds the server's text when it is not a recognizable time
	RawTimestamp string `json:"-"`
}

// timestampLayouts are tried in order when reading an original scan time.
// Zone-less layouts come from database columns without a time zone and are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON reads the informational fields leniently. A field of the wrong shape is
// left empty rather than failing the whole response.
func (e *ExistingScan) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var scannedBy, timestamp string
	if json.Unmarshal(fields["scanned_by"], &scannedBy) != nil {
		scannedBy = ""
	}
	if json.Unmarshal(fields["scan_timestamp"], &timestamp) != nil {
		timestamp = ""
	}

	*e = ExistingScan{ScannedBy: scannedBy}
	timestamp = strings.TrimSpace(timestamp)
	if timestamp == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, timestamp); err == nil {
			e.ScanTimestamp = t
			return nil
		}
	}
	e.RawTimestamp = timestamp
	return nil
}

// SubmitResponse is the wire body returned by a scan submission
type SubmitResponse struct {
	Success      bool          `json:"success"`
	IsDuplicate  bool          `json:"isDuplicate,omitempty"`
	Message      string        `json:"message,omitempty"`
	ExistingScan *ExistingScan `json:"existingScan,omitempty"`
}

// Stats are the server's scan counters
type Stats struct {
	Today int `json:"today"`
	Total int `json:"total"`
}

// StatsResponse is the wire body of the statistics endpoint
type StatsResponse struct {
	Success bool   `json:"success"`
	Stats   Stats  `json:"stats"`
	Message string `json:"message,omitempty"`
}

// Result is the server's verdict for a submitted payload
type Result struct {
	Accepted    bool
	Message     string
	DuplicateOf *ExistingScan // set only when Accepted is false
}
