package domain

import "errors"

// Sentinel errors used throughout the application.
// The API layer translates these to HTTP status codes via a single mapError
// function; the pipeline translates them to candidate outcomes.
var (
	// ErrAuth marks a failed credential exchange. Batch-fatal: a run that
	// cannot authenticate aborts before touching any candidate.
	ErrAuth = errors.New("satusehat credential exchange failed")

	// ErrStore marks an unreachable local store or a failed query/write.
	ErrStore = errors.New("local store error")

	// ErrNoCorrelation means no LIS batch matched the order's business key.
	// A normal skip outcome, not a failure.
	ErrNoCorrelation = errors.New("no matching result batch for order")

	// ErrNoEligibleItems means the correlated batch had no item with a
	// non-blank LOINC code.
	ErrNoEligibleItems = errors.New("no result item carries a LOINC code")

	// ErrIncompleteOrder means the order header is missing a patient,
	// encounter or practitioner identifier.
	ErrIncompleteOrder = errors.New("order is missing required identifiers")

	// ErrRunInProgress is returned when a batch run is requested while a
	// previous run is still executing.
	ErrRunInProgress = errors.New("a bridging run is already in progress")

	// ErrOrderNotFound is returned by single-order lookups.
	ErrOrderNotFound = errors.New("lab order not found")
)
