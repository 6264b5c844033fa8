package decoding

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrNoCode is returned by a strategy that ran but found no QR payload
	ErrNoCode = errors.New("no qr code found")

	// ErrUnavailable is returned by a strategy that could not run at all
	ErrUnavailable = errors.New("strategy unavailable")

	// ErrInvalidImage is returned by the pipeline when the input bytes are not an image
	ErrInvalidImage = errors.New("invalid image")
)

// Outcome is the result of a single strategy attempt
type Outcome string

const (
	OutcomeDecoded     Outcome = "decoded"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeUnavailable Outcome = "unavailable"
)

// Strategy defines one independent way of extracting a QR payload from an image
type Strategy interface {
	// Name identifies the strategy in diagnostics
	Name() string
	// Decode returns the payload, ErrNoCode when none was found, or any other error
	// when the strategy could not run
	Decode(ctx context.Context, img image.Image) (string, error)
}

// StrategyFunc adapts a function to the Strategy interface
type StrategyFunc struct {
	Label string
	Fn    func(ctx context.Context, img image.Image) (string, error)
}

func (s StrategyFunc) Name() string { return s.Label }

func (s StrategyFunc) Decode(ctx context.Context, img image.Image) (string, error) {
	return s.Fn(ctx, img)
}

// Attempt records one strategy's try at the image
type Attempt struct {
	Strategy string  `json:"strategy"`
	Outcome  Outcome `json:"outcome"`
	Detail   string  `json:"detail,omitempty"`
}

// Result is the outcome of a full pipeline run
type Result struct {
	Text     string    `json:"text,omitempty"`
	Strategy string    `json:"strategy,omitempty"`
	Attempts []Attempt `json:"attempts"`
}

// Found reports whether any strategy produced a payload
func (r *Result) Found() bool {
	return r != nil && r.Text != ""
}

// Unavailable reports whether every attempted strategy was unable to run
func (r *Result) Unavailable() bool {
	if r == nil || len(r.Attempts) == 0 {
		return false
	}
	for _, a := range r.Attempts {
		if a.Outcome != OutcomeUnavailable {
			return false
		}
	}
	return true
}
