package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a prediction request was rejected. Handlers and tests
// match on Kind, never on message text.
type Kind int

const (
	KindNone Kind = iota
	KindAuthorizationRequired
	KindUnsupportedFormat
	KindParseFailed
	KindMissingFeatures
	KindFeatureCountMismatch
	KindModelNotLoaded
	KindInferenceFailed
	KindPersistFailed
)

func (k Kind) String() string {
	switch k {
	case KindAuthorizationRequired:
		return "authorization_required"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindParseFailed:
		return "parse_failed"
	case KindMissingFeatures:
		return "missing_features"
	case KindFeatureCountMismatch:
		return "feature_count_mismatch"
	case KindModelNotLoaded:
		return "model_not_loaded"
	case KindInferenceFailed:
		return "inference_failed"
	case KindPersistFailed:
		return "persist_failed"
	default:
		return "none"
	}
}

// Error is the terminal outcome of a failed request. At most one is
// produced per request; nothing downstream of the failing stage runs.
type Error struct {
	Kind Kind

	// Missing is set for KindMissingFeatures: all absent expected columns,
	// in expected order.
	Missing []string

	// Expected and Actual are set for KindFeatureCountMismatch.
	Expected int
	Actual   int

	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuthorizationRequired:
		return "please log in to make predictions"
	case KindUnsupportedFormat:
		return "unsupported file type, expected .csv"
	case KindParseFailed:
		return fmt.Sprintf("could not parse upload: %v", e.cause)
	case KindMissingFeatures:
		return fmt.Sprintf("missing features: %s", truncateList(e.Missing, 10))
	case KindFeatureCountMismatch:
		return fmt.Sprintf("model expects %d features, got %d", e.Expected, e.Actual)
	case KindModelNotLoaded:
		return "model not loaded"
	case KindInferenceFailed:
		return fmt.Sprintf("inference failed: %v", e.cause)
	case KindPersistFailed:
		return fmt.Sprintf("could not store result: %v", e.cause)
	default:
		return "unknown error"
	}
}

func (e *Error) Unwrap() error { return e.cause }

// truncateList renders at most n names, with an ellipsis marker when more
// were omitted.
func truncateList(names []string, n int) string {
	if len(names) <= n {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:n], ", ") + fmt.Sprintf(", ... (%d more)", len(names)-n)
}

// KindOf extracts the Kind from an error chain, or KindNone.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNone
}

func failf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: fmt.Errorf(format, args...)}
}
