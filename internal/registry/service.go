package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/scangate/internal/scanapi"
)

// ErrInvalidScan is returned for a submission with a missing or oversized payload, or a bad timestamp
var ErrInvalidScan = errors.New("invalid scan")

// MaxQRDataLength is the largest payload a QR code can hold (version 40, numeric mode)
const MaxQRDataLength = 7089

// IDGenerator generates unique IDs for scans
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles scan recording
type Service struct {
	db          DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB) *Service {
	return &Service{
		db:          db,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// RecordScan records req for operator. When the payload was already recorded the
// earlier scan is returned as the second value and nothing is stored.
func (s *Service) RecordScan(kind scanapi.Kind, operator string, req scanapi.SubmitRequest) (*Scan, *Scan, error) {
	if req.QRData == "" {
		return nil, nil, fmt.Errorf("%w: qr_data is required", ErrInvalidScan)
	}
	if len(req.QRData) > MaxQRDataLength {
		return nil, nil, fmt.Errorf("%w: qr_data is longer than %d bytes", ErrInvalidScan, MaxQRDataLength)
	}

	now := s.timeSource.Now()
	scannedAt := now
	if ts := strings.TrimSpace(req.ScanTimestamp); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: scan_timestamp: %v", ErrInvalidScan, err)
		}
		scannedAt = parsed
	}

	scan := &Scan{
		ID:            s.idGenerator.Generate(),
		Kind:          kind,
		QRData:        req.QRData,
		ScanTimestamp: scannedAt,
		ScannedBy:     operator,
		ScannerType:   req.ScannerType,
		DeviceInfo:    req.DeviceInfo,
		CreatedAt:     now,
	}

	existing, err := s.db.RecordScan(scan)
	if err != nil {
		return nil, nil, fmt.Errorf("recording scan: %w", err)
	}
	if existing != nil {
		return nil, existing, nil
	}
	return scan, nil, nil
}

// Stats counts scans of kind taken since local midnight and in total
func (s *Service) Stats(kind scanapi.Kind) (scanapi.Stats, error) {
	now := s.timeSource.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	today, total, err := s.db.CountScans(kind, midnight)
	if err != nil {
		return scanapi.Stats{}, fmt.Errorf("counting scans: %w", err)
	}
	return scanapi.Stats{Today: today, Total: total}, nil
}

// ListScans returns all scans of kind
func (s *Service) ListScans(kind scanapi.Kind) ([]*Scan, error) {
	scans, err := s.db.ListScans(kind)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return scans, nil
}
