package contract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDegradedExtraction  = errors.New("language provider degraded")
	ErrProviderUnavailable = errors.New("content provider unavailable")
	ErrProviderTimeout     = errors.New("content provider timed out")
	ErrMemoryWrite         = errors.New("memory write failed")
	ErrValidation          = errors.New("envelope validation failed")
)

// ProviderError wraps a failure from one content provider with enough
// context for retry policy and the per-kind unavailable tag.
type ProviderError struct {
	Provider  string
	Kind      GenerationKind
	Reason    string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s (%s): %s", e.Provider, e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Retryable {
		return ErrProviderUnavailable
	}
	return nil
}

// Validate enforces the flag contract: refresh_gallery is true exactly when
// the envelope carries freshly generated content, a ready flag without
// content names a deferral reason, and the reply is never empty.
func (e *GenerationEnvelope) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrValidation)
	}
	if strings.TrimSpace(e.AttemptID) == "" {
		return fmt.Errorf("%w: empty attempt id", ErrValidation)
	}
	if strings.TrimSpace(e.Reply) == "" {
		return fmt.Errorf("%w: empty reply", ErrValidation)
	}
	if e.Flags.RefreshGallery && !e.HasContent() {
		return fmt.Errorf("%w: refresh_gallery set without content", ErrValidation)
	}
	if !e.Flags.RefreshGallery && e.HasContent() {
		return fmt.Errorf("%w: content attached without refresh_gallery", ErrValidation)
	}
	if e.Flags.ReadyToGenerate && !e.HasContent() && strings.TrimSpace(e.Flags.DeferralReason) == "" {
		return fmt.Errorf("%w: ready_to_generate without content or deferral reason", ErrValidation)
	}
	switch e.Flags.GenerationStatus {
	case GenerationStatusIdle, GenerationStatusGenerated, GenerationStatusPartial,
		GenerationStatusUnavailable, GenerationStatusSkipped:
	default:
		return fmt.Errorf("%w: unknown generation status %q", ErrValidation, e.Flags.GenerationStatus)
	}
	return nil
}
