package interfaces

import "errors"

// Sentinel errors shared across components. Callers match them with
// errors.Is; concrete clients wrap them with request context.
var (
	// ErrDuplicateName is returned when creating a publisher whose name
	// already exists in the tenant.
	ErrDuplicateName = errors.New("publisher name already exists in tenant")

	// ErrAuthFailed is returned on invalid or expired tenant credentials.
	ErrAuthFailed = errors.New("tenant authentication failed")

	// ErrRateLimited is returned on tenant API throttling after retries are
	// exhausted.
	ErrRateLimited = errors.New("tenant API rate limited")

	// ErrNotFound is returned when a referenced resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when an operation is refused because of a live
	// dependent resource, e.g. deleting an identity with a connected instance.
	ErrConflict = errors.New("operation conflicts with live resource")

	// ErrAccessDenied is returned when the caller's identity lacks permission,
	// most importantly on secret decryption.
	ErrAccessDenied = errors.New("access denied")

	// ErrTokenConsumed is returned when a registration attempt reuses an
	// already-consumed token. Remediation differs from a generic failure: the
	// unit must be replaced with a fresh identity and token.
	ErrTokenConsumed = errors.New("registration token already consumed")

	// ErrTimedOut is returned when a bounded poll exhausts its attempt ceiling.
	ErrTimedOut = errors.New("timed out waiting for remote state")

	// ErrDrift is returned when external state no longer matches the
	// controller's records. Drift is surfaced, never auto-healed.
	ErrDrift = errors.New("external state drift detected")
)

// ErrorClass buckets errors by remediation, per the failure taxonomy.
type ErrorClass int

const (
	// ClassGeneric needs case-by-case diagnosis.
	ClassGeneric ErrorClass = iota
	// ClassTransient is safe to retry with backoff.
	ClassTransient
	// ClassTimeout is terminal for the attempt; the operator re-runs explicitly.
	ClassTimeout
	// ClassConflict needs explicit corrective action before retrying.
	ClassConflict
	// ClassSingleUse needs a fresh identity+token pair (unit replacement).
	ClassSingleUse
	// ClassDrift needs manual reconciliation or import.
	ClassDrift
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassTimeout:
		return "timeout"
	case ClassConflict:
		return "conflict"
	case ClassSingleUse:
		return "single-use-violation"
	case ClassDrift:
		return "drift"
	default:
		return "generic"
	}
}

// Classify maps an error to its remediation class.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrRateLimited):
		return ClassTransient
	case errors.Is(err, ErrTimedOut):
		return ClassTimeout
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicateName):
		return ClassConflict
	case errors.Is(err, ErrTokenConsumed):
		return ClassSingleUse
	case errors.Is(err, ErrDrift):
		return ClassDrift
	default:
		return ClassGeneric
	}
}
