// Package gate owns the scanner session state machine: it submits decoded payloads and
// refuses new captures while a duplicate warning is waiting for acknowledgment.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/scangate/internal/decoding"
	"github.com/zombor/scangate/internal/scanapi"
)

var (
	// ErrCaptureBlocked is returned when a capture arrives while processing or while a
	// duplicate warning is unacknowledged
	ErrCaptureBlocked = errors.New("capture not allowed")

	// ErrNotAllowed is returned for an action that is not valid in the current phase
	ErrNotAllowed = errors.New("action not allowed")
)

// notFoundTips are shown when no strategy could read a code
var notFoundTips = []string{
	"Make sure the QR code is well lit and free of glare",
	"Hold the camera 15-30 cm from the code",
	"Keep the whole code inside the frame and hold steady",
	"Clean the camera lens or use a sharper photo",
}

// Decoder turns capture bytes into a QR payload
type Decoder interface {
	Decode(ctx context.Context, data []byte, contentType string) (*decoding.Result, error)
}

// Submitter records payloads with the portal and reports running totals
type Submitter interface {
	Submit(ctx context.Context, p scanapi.Payload) (*scanapi.Result, error)
	Stats(ctx context.Context) (*scanapi.Stats, error)
}

// Observer is notified after every transition out of processing and after the operator
// returns the session to idle. c is nil for operator actions.
type Observer interface {
	Observe(snap Snapshot, c *Capture)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Capture is one image handed to the session by the operator
type Capture struct {
	Data        []byte
	ContentType string
	Filename    string
	Source      scanapi.ScannerType
}

// Session is one scanning screen's state machine
type Session struct {
	decoder    Decoder
	submitter  Submitter
	timeSource TimeSource
	observers  []Observer

	mu      sync.Mutex
	state   state
	totals  Totals
	last    *Capture // kept only while showing an error, for Retry
	started uint64   // captures that have entered processing
}

// NewSession creates a Session in the idle phase
func NewSession(decoder Decoder, submitter Submitter) *Session {
	return NewSessionWithDeps(decoder, submitter, defaultTimeSource{})
}

// NewSessionWithDeps creates a Session with a custom time source for testing
func NewSessionWithDeps(decoder Decoder, submitter Submitter, timeSource TimeSource) *Session {
	return &Session{
		decoder:    decoder,
		submitter:  submitter,
		timeSource: timeSource,
		state:      idle(),
	}
}

// Observe registers o for transition notifications. Register observers before the
// session starts serving captures.
func (s *Session) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Session) notify(snap Snapshot, c *Capture) {
	for _, o := range s.observers {
		o.Observe(snap, c)
	}
}

// Snapshot returns the current state for rendering
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Refresh seeds the running totals from the server. It returns ErrNotAllowed while a
// capture is processing, or when a capture started while the totals were being fetched.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.state.phase == PhaseProcessing {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: refresh while %s", ErrNotAllowed, snap.Phase)
	}
	started := s.started
	s.mu.Unlock()

	stats, err := s.submitter.Stats(ctx)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("loading scan stats: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started != started {
		return s.snapshotLocked(), fmt.Errorf("%w: a capture started during refresh", ErrNotAllowed)
	}
	s.totals = Totals{Today: stats.Today, Total: stats.Total}
	return s.snapshotLocked(), nil
}

// Capture decodes and submits c. It returns ErrCaptureBlocked without changing state
// while processing or while a duplicate warning awaits acknowledgment.
func (s *Session) Capture(ctx context.Context, c Capture) (Snapshot, error) {
	s.mu.Lock()
	if !s.state.phase.acceptsCapture() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: session is %s", ErrCaptureBlocked, snap.Phase)
	}
	s.state = processing()
	s.last = nil
	s.started++
	s.mu.Unlock()

	return s.run(ctx, c), nil
}

// Retry re-runs the capture that led to the current error
func (s *Session) Retry(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.state.phase != PhaseShowingError || s.last == nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: retry while %s", ErrNotAllowed, snap.Phase)
	}
	c := *s.last
	s.state = processing()
	s.last = nil
	s.started++
	s.mu.Unlock()

	return s.run(ctx, c), nil
}

// Acknowledge dismisses a duplicate warning and re-arms the scanner.
// It is the only way out of the duplicate warning phase.
func (s *Session) Acknowledge() (Snapshot, error) {
	s.mu.Lock()
	if s.state.phase != PhaseShowingDuplicateWarning {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: acknowledge while %s", ErrNotAllowed, snap.Phase)
	}
	slog.Info("Duplicate scan acknowledged", "payload", s.state.duplicate.Payload.RawText)
	s.state = idle()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap, nil)
	return snap, nil
}

// Dismiss closes an error panel without retrying
func (s *Session) Dismiss() (Snapshot, error) {
	s.mu.Lock()
	if s.state.phase != PhaseShowingError {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: dismiss while %s", ErrNotAllowed, snap.Phase)
	}
	s.state = idle()
	s.last = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap, nil)
	return snap, nil
}

// run evaluates c outside the lock and applies the resulting transition
func (s *Session) run(ctx context.Context, c Capture) Snapshot {
	next := s.evaluate(ctx, c)

	s.mu.Lock()
	s.state = next
	switch next.phase {
	case PhaseShowingSuccess:
		s.totals.Today++
		s.totals.Total++
		slog.Info("Scan accepted", "payload", next.success.Payload.RawText, "strategy", next.success.Strategy)
	case PhaseShowingDuplicateWarning:
		slog.Info("Duplicate scan", "payload", next.duplicate.Payload.RawText, "original_scanned_by", next.duplicate.OriginalScannedBy)
	case PhaseShowingError:
		s.last = &c
		slog.Info("Scan failed", "kind", next.failure.Kind, "message", next.failure.Message)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap, &c)
	return snap
}

// evaluate decodes and submits c, returning the terminal state
func (s *Session) evaluate(ctx context.Context, c Capture) state {
	result, err := s.decoder.Decode(ctx, c.Data, c.ContentType)
	if err != nil {
		if errors.Is(err, decoding.ErrInvalidImage) {
			return failed(ErrorPanel{
				Kind:    ErrorInvalidImage,
				Message: "The file is not a readable image. Capture a new photo or choose a JPEG, PNG, HEIC or PDF file.",
			})
		}
		return failed(ErrorPanel{Kind: ErrorUnexpected, Message: fmt.Sprintf("Decoding failed: %v", err)})
	}
	if !result.Found() {
		return failed(ErrorPanel{
			Kind:    ErrorNotFound,
			Message: "No QR code was found in the image.",
			Tips:    notFoundTips,
		})
	}

	payload, err := scanapi.NewPayload(result.Text, c.Source, s.timeSource.Now())
	if err != nil {
		return failed(ErrorPanel{Kind: ErrorUnexpected, Message: err.Error()})
	}

	verdict, err := s.submitter.Submit(ctx, payload)
	if err != nil {
		panel := submissionError(err)
		panel.Payload = &payload
		return failed(panel)
	}

	if !verdict.Accepted {
		w := DuplicateWarning{
			Payload: payload,
			Message: verdict.Message,
		}
		if w.Message == "" {
			w.Message = "This QR code has already been scanned."
		}
		if verdict.DuplicateOf != nil {
			w.OriginalScannedAt = verdict.DuplicateOf.ScanTimestamp
			w.OriginalScannedBy = verdict.DuplicateOf.ScannedBy
			w.OriginalScannedAtText = verdict.DuplicateOf.RawTimestamp
		}
		return duplicated(w)
	}

	return succeeded(SuccessPanel{
		Payload:  payload,
		Strategy: result.Strategy,
		Message:  verdict.Message,
	})
}

// submissionError maps a submission failure to an operator-facing panel
func submissionError(err error) ErrorPanel {
	switch {
	case errors.Is(err, scanapi.ErrUnauthenticated):
		return ErrorPanel{
			Kind:    ErrorAuthentication,
			Message: "Your session is missing or has expired. Sign in again, then try again.",
		}
	case errors.Is(err, scanapi.ErrServer):
		return ErrorPanel{
			Kind:    ErrorServer,
			Message: "The portal server could not record this scan. Try again in a moment.",
		}
	case errors.Is(err, scanapi.ErrConnectivity):
		return ErrorPanel{
			Kind:    ErrorConnectivity,
			Message: "Could not reach the portal server. Check the network connection and try again.",
		}
	}
	return ErrorPanel{
		Kind:    ErrorUnexpected,
		Message: fmt.Sprintf("The portal returned an unexpected response: %v", err),
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:                 s.state.phase,
		PendingAcknowledgment: s.state.phase == PhaseShowingDuplicateWarning,
		CanCapture:            s.state.phase.acceptsCapture(),
		CanRetry:              s.state.phase == PhaseShowingError && s.last != nil,
		Totals:                s.totals,
		Success:               s.state.success,
		Duplicate:             s.state.duplicate,
		Error:                 s.state.failure,
	}
}
