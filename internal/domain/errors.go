package domain

import "errors"

// Classifier error taxonomy. Callers distinguish timeouts from unavailability
// because the review gate's degraded-mode policy depends on why a model was
// excluded, not just that it was.
var (
	// ErrClassifierTimeout indicates a classifier did not answer in time.
	ErrClassifierTimeout = errors.New("classifier timeout")

	// ErrClassifierUnavailable indicates the classifier backend is unreachable
	// or returned a server-side failure.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrClassifierInvalidResponse indicates a malformed classifier response,
	// such as a missing label or a score outside [0,1].
	ErrClassifierInvalidResponse = errors.New("classifier invalid response")
)

// ErrConfigurationInvalid is raised at configuration load time only. A failed
// reload keeps the previous snapshot active.
var ErrConfigurationInvalid = errors.New("configuration invalid")

// ErrNoSnapshot indicates Analyze was called before any pattern catalog and
// threshold tables were installed. This is a startup-ordering bug, not a
// runtime expectation.
var ErrNoSnapshot = errors.New("no configuration snapshot installed")
