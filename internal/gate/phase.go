package gate

import (
	"fmt"
	"time"

	"github.com/zombor/scangate/internal/scanapi"
)

// Phase is the scanner session's position in the capture workflow
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProcessing
	PhaseShowingSuccess
	PhaseShowingDuplicateWarning
	PhaseShowingError
)

var phaseNames = map[Phase]string{
	PhaseIdle:                    "idle",
	PhaseProcessing:              "processing",
	PhaseShowingSuccess:          "showing_success",
	PhaseShowingDuplicateWarning: "showing_duplicate_warning",
	PhaseShowingError:            "showing_error",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase: %q", text)
}

// acceptsCapture reports whether a new capture may start from p
func (p Phase) acceptsCapture() bool {
	switch p {
	case PhaseIdle, PhaseShowingSuccess, PhaseShowingError:
		return true
	}
	return false
}

// ErrorKind tells the operator which remediation applies
type ErrorKind string

const (
	ErrorNotFound       ErrorKind = "not_found"
	ErrorInvalidImage   ErrorKind = "invalid_image"
	ErrorAuthentication ErrorKind = "authentication"
	ErrorServer         ErrorKind = "server"
	ErrorConnectivity   ErrorKind = "connectivity"
	ErrorUnexpected     ErrorKind = "unexpected"
)

// Totals are the running scan counters shown on the station
type Totals struct {
	Today int `json:"today"`
	Total int `json:"total"`
}

// SuccessPanel is shown after an accepted submission
type SuccessPanel struct {
	Payload  scanapi.Payload `json:"payload"`
	Strategy string          `json:"strategy,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// DuplicateWarning is shown when the server has already recorded the payload
type DuplicateWarning struct {
	Payload           scanapi.Payload `json:"payload"`
	Message           string          `json:"message"`
	OriginalScannedAt time.Time       `json:"original_scanned_at"`
	OriginalScannedBy string          `json:"original_scanned_by"`

	// OriginalScannedAtText is the server's time text when it could not be parsed
	OriginalScannedAtText string `json:"original_scanned_at_text,omitempty"`
}

// ErrorPanel is shown when a capture could not be decoded or submitted
type ErrorPanel struct {
	Kind    ErrorKind        `json:"kind"`
	Message string           `json:"message"`
	Tips    []string         `json:"tips,omitempty"`
	Payload *scanapi.Payload `json:"payload,omitempty"` // set when decoding succeeded but submission failed
}

// state pairs a phase with the one panel that phase displays.
// Build values only through the constructors below.
type state struct {
	phase     Phase
	success   *SuccessPanel
	duplicate *DuplicateWarning
	failure   *ErrorPanel
}

func idle() state       { return state{phase: PhaseIdle} }
func processing() state { return state{phase: PhaseProcessing} }

func succeeded(p SuccessPanel) state {
	return state{phase: PhaseShowingSuccess, success: &p}
}

func duplicated(w DuplicateWarning) state {
	return state{phase: PhaseShowingDuplicateWarning, duplicate: &w}
}

func failed(e ErrorPanel) state {
	return state{phase: PhaseShowingError, failure: &e}
}

// Snapshot is a read-only copy of the session for rendering
type Snapshot struct {
	Phase                 Phase             `json:"phase"`
	PendingAcknowledgment bool              `json:"pending_acknowledgment"`
	CanCapture            bool              `json:"can_capture"`
	CanRetry              bool              `json:"can_retry"`
	Totals                Totals            `json:"totals"`
	Success               *SuccessPanel     `json:"success,omitempty"`
	Duplicate             *DuplicateWarning `json:"duplicate,omitempty"`
	Error                 *ErrorPanel       `json:"error,omitempty"`
}
