package decoding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// DefaultStrategies returns the fixed decode order: the primary reader in three
// polarities, two independent fallback libraries, then contrast enhancement.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewZXing(DontInvert),
		NewZXing(OnlyInvert),
		NewZXing(AttemptBoth),
		Quirc{},
		Tuotoo{},
		NewEnhanced(nil),
	}
}

// Pipeline turns capture bytes into a QR payload
type Pipeline struct {
	strategies []Strategy
	maxDim     int
}

// NewPipeline creates a Pipeline with the default strategies followed by extra
func NewPipeline(maxDim int, extra ...Strategy) *Pipeline {
	return NewPipelineWithStrategies(maxDim, append(DefaultStrategies(), extra...))
}

// NewPipelineWithStrategies creates a Pipeline with a custom strategy order
func NewPipelineWithStrategies(maxDim int, strategies []Strategy) *Pipeline {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	return &Pipeline{
		strategies: strategies,
		maxDim:     maxDim,
	}
}

// Strategies returns the strategy names in the order they are tried
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Decode loads the image, downscales it and tries each strategy in order until one
// yields a payload. A result with Found() == false is the normal "no code" outcome;
// an error is returned only for input that is not an image or a cancelled context.
func (p *Pipeline) Decode(ctx context.Context, data []byte, contentType string) (*Result, error) {
	img, err := loadImage(data, contentType)
	if err != nil {
		return nil, err
	}
	img = downscale(img, p.maxDim)

	result := &Result{Attempts: make([]Attempt, 0, len(p.strategies))}
	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("decoding cancelled: %w", err)
		}

		attempt, text := runStrategy(ctx, s, img)
		result.Attempts = append(result.Attempts, attempt)
		if text != "" {
			result.Text = text
			result.Strategy = s.Name()
			slog.Debug("QR payload decoded", "strategy", s.Name(), "attempts", len(result.Attempts))
			return result, nil
		}
	}

	slog.Debug("No QR payload found", "attempts", len(result.Attempts), "all_unavailable", result.Unavailable())
	return result, nil
}

// runStrategy executes s and converts every failure, including a panic, into an Attempt
func runStrategy(ctx context.Context, s Strategy, img image.Image) (attempt Attempt, text string) {
	attempt = Attempt{Strategy: s.Name()}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Decode strategy panicked", "strategy", s.Name(), "panic", r)
			attempt.Outcome = OutcomeUnavailable
			attempt.Detail = fmt.Sprintf("panic: %v", r)
			text = ""
		}
	}()

	text, err := s.Decode(ctx, img)
	switch {
	case err == nil && text != "":
		attempt.Outcome = OutcomeDecoded
	case err == nil, errors.Is(err, ErrNoCode):
		attempt.Outcome = OutcomeNotFound
		text = ""
	default:
		slog.Warn("Decode strategy unavailable", "strategy", s.Name(), "error", err)
		attempt.Outcome = OutcomeUnavailable
		attempt.Detail = err.Error()
		text = ""
	}
	return attempt, text
}
