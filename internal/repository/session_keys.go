package repository

import (
	"fmt"

	"assessment-service/internal/constants"
)

// sessionKey returns the key holding the scalar session record for one
// attempt tuple. Deterministic so retries and concurrent readers always
// resolve to the same key. User and assessment ids are opaque identifiers
// (UUIDs in practice) and must not contain the ":" separator; ids that do
// would make distinct tuples share a key.
func sessionKey(userID, assessmentID string, attemptNumber int) string {
	return fmt.Sprintf("%s:%s:%s:%d", constants.SessionKeyPrefix, userID, assessmentID, attemptNumber)
}

// questionsKey returns the companion hash key holding the per-question
// records for the same attempt tuple, keyed by question index.
func questionsKey(userID, assessmentID string, attemptNumber int) string {
	return sessionKey(userID, assessmentID, attemptNumber) + ":questions"
}
