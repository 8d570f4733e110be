package repository

import "errors"

var (
	// ErrStoreUnavailable means the session store backend is not configured
	// or not reachable. There is deliberately no in-memory fallback: the
	// store is what provides cross-request concurrency guarantees.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrSessionNotFound is returned from the update path when the session
	// record does not exist (expired or never created).
	ErrSessionNotFound = errors.New("attempt session not found")

	// ErrOutOfOrderSubmission means the submitted question index does not
	// match the session's expected next index. Never retried: the mismatch
	// is logical, not a race.
	ErrOutOfOrderSubmission = errors.New("out-of-order answer submission")

	// ErrConcurrentModification means the optimistic-lock retry loop
	// exhausted its attempts because a concurrent writer kept winning.
	ErrConcurrentModification = errors.New("concurrent session modification after retries")

	// ErrCorruptSession means a stored record failed to decode or failed
	// shape validation. Treated as fatal rather than repaired.
	ErrCorruptSession = errors.New("corrupt attempt session record")

	// ErrTxConflict reports a single aborted optimistic transaction (a
	// watched key changed before exec). The update loop retries on it.
	ErrTxConflict = errors.New("optimistic transaction aborted")
)
