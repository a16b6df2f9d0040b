package scoring

import "errors"

var (
	ErrWeakSignal    = errors.New("signal too weak")
	ErrLowConfidence = errors.New("confidence below threshold")
)

// DefaultMinConfidence is the acceptance threshold used when none is configured.
const DefaultMinConfidence = 30

// Accept decides whether a scored result may become a live signal.
func Accept(r Result, minConfidence int) error {
	if r.Weak() {
		return ErrWeakSignal
	}
	if r.Confidence < minConfidence {
		return ErrLowConfidence
	}
	return nil
}
