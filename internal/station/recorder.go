package station

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/scangate/internal/gate"
)

// IDGenerator generates history entry IDs that sort in creation order
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates time-ordered UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Recorder logs every capture outcome to history and archives captures that could not be
// decoded so an operator can inspect them later
type Recorder struct {
	history     History
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	retain      int
}

// NewRecorder creates a new Recorder with default ID generator and time source.
// storage may be nil to disable the archive.
func NewRecorder(history History, storage Storage) *Recorder {
	return NewRecorderWithDeps(history, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewRecorderWithDeps creates a new Recorder with custom dependencies for testing
func NewRecorderWithDeps(history History, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Recorder {
	return &Recorder{
		history:     history,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// WithRetention keeps only the newest n entries, deleting the archived captures of pruned
// entries. Zero keeps everything.
func (r *Recorder) WithRetention(n int) *Recorder {
	r.retain = n
	return r
}

// Observe implements gate.Observer. Operator actions carry no capture and are not recorded.
func (r *Recorder) Observe(snap gate.Snapshot, c *gate.Capture) {
	if c == nil {
		return
	}

	entry := &HistoryEntry{
		ID:     r.idGenerator.Generate(),
		At:     r.timeSource.Now(),
		Phase:  snap.Phase,
		Source: c.Source,
	}

	switch {
	case snap.Success != nil:
		entry.Payload = snap.Success.Payload.RawText
		entry.Strategy = snap.Success.Strategy
		entry.Message = snap.Success.Message
	case snap.Duplicate != nil:
		entry.Payload = snap.Duplicate.Payload.RawText
		entry.Message = snap.Duplicate.Message
		entry.OriginalScannedBy = snap.Duplicate.OriginalScannedBy
	case snap.Error != nil:
		entry.ErrorKind = snap.Error.Kind
		entry.Message = snap.Error.Message
		if snap.Error.Payload != nil {
			entry.Payload = snap.Error.Payload.RawText
		}
		if r.storage != nil && isDecodeFailure(snap.Error.Kind) {
			r.archive(entry, c)
		}
	}

	if err := r.history.Record(entry); err != nil {
		slog.Error("Failed to record history entry", "id", entry.ID, "phase", entry.Phase, "error", err)
		return
	}
	if r.retain > 0 {
		r.prune()
	}
}

// prune trims history to the retention limit and removes orphaned archive files
func (r *Recorder) prune() {
	removed, err := r.history.Prune(r.retain)
	if err != nil {
		slog.Error("Failed to prune history", "retain", r.retain, "error", err)
		return
	}
	for _, entry := range removed {
		if entry.CaptureFile == "" || r.storage == nil {
			continue
		}
		if err := r.storage.Delete(entry.CaptureFile); err != nil {
			slog.Warn("Failed to delete archived capture", "file", entry.CaptureFile, "error", err)
		}
	}
	if len(removed) > 0 {
		slog.Debug("Pruned history", "removed", len(removed))
	}
}

// archive stores the capture bytes and links them from entry
func (r *Recorder) archive(entry *HistoryEntry, c *gate.Capture) {
	name := c.Filename
	if name == "" {
		name = "capture"
	}
	saved, err := r.storage.Save(fmt.Sprintf("%s_%s", entry.ID, sanitizeFilename(name)), c.Data)
	if err != nil {
		slog.Error("Failed to archive capture",
			"filename", c.Filename,
			"content_type", c.ContentType,
			"file_size", len(c.Data),
			"error", err,
		)
		return
	}
	entry.CaptureFile = saved
	entry.ContentType = c.ContentType
}

func isDecodeFailure(kind gate.ErrorKind) bool {
	return kind == gate.ErrorNotFound || kind == gate.ErrorInvalidImage
}
