package constants

import "time"

const (
	// SessionTTL bounds how long an in-progress attempt survives without
	// activity. Both the scalar session key and its question hash share it.
	SessionTTL = 7 * 24 * time.Hour

	AssessmentCacheTTL = 1 * time.Hour
)

const (
	MaxUpdateAttempts    = 3
	UpdateRetryBaseDelay = 50 * time.Millisecond
)

const (
	SessionKeyPrefix = "assessment:attempt"

	AssessmentCacheKeyPrefix = "assessment:content"
)

const (
	AttemptFinalizedQueue = "assessment.attempt.finalized"
)
