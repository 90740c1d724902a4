// Package swifterrors enumerates the error kinds surfaced by the cluster
// coordination core and the propagation policy each one follows (see spec §7).
package swifterrors

import "errors"

// Kind identifies one of the error classes the core reasons about. Sites
// that handle errors type-switch or errors.Is against these sentinels rather
// than matching on message text.
type Kind int

const (
	// KVUnavailable means a KV operation failed for transport reasons. Not
	// fatal: the next reconcile tick retries.
	KVUnavailable Kind = iota
	// CASConflict means a compare-and-swap lost the race. Never surfaced to
	// callers; handled with silent retry at the call site.
	CASConflict
	// ManagerTaken means Register(_, Manager) found another online Manager.
	// Surfaced to the caller of Register.
	ManagerTaken
	// JobPackageConfigExtract means a Jobs/*.zip package is missing job.json
	// or failed to extract. Surfaced; the package is skipped on later cycles.
	JobPackageConfigExtract
	// MalformedKVValue means a KV value failed to decode. Logged and the key
	// is skipped for the current tick.
	MalformedKVValue
	// HealthProbeFailed means CheckHealth returned an error rather than a
	// verdict. Not fatal.
	HealthProbeFailed
)

func (k Kind) String() string {
	switch k {
	case KVUnavailable:
		return "KVUnavailable"
	case CASConflict:
		return "CASConflict"
	case ManagerTaken:
		return "ManagerTaken"
	case JobPackageConfigExtract:
		return "JobPackageConfigExtract"
	case MalformedKVValue:
		return "MalformedKVValue"
	case HealthProbeFailed:
		return "HealthProbeFailed"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can classify it
// without parsing strings.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Cause: errors.New(msg)}
}

func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// ErrManagerTaken is returned by Register when role=Manager is requested but
// another member is already online with that role under a different id.
var ErrManagerTaken = New(ManagerTaken, "a different member is already the online manager")
