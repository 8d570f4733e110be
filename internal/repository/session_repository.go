package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"assessment-service/internal/constants"
	"assessment-service/internal/models"
)

// SessionRepository tracks one user's in-progress answers for an assessment
// attempt in the session store. Each attempt tuple owns exactly two keys: a
// scalar session record and a per-question hash. Both share one TTL
// lifecycle and are refreshed together on every read or write.
type SessionRepository struct {
	store SessionStore
}

func NewSessionRepository(store SessionStore) *SessionRepository {
	return &SessionRepository{store: store}
}

// Create writes a fresh session record with the session TTL. Callers are
// responsible for attempt-number uniqueness; there is no pre-existence
// check.
func (r *SessionRepository) Create(ctx context.Context, userID, assessmentID string, attemptNumber, totalQuestions int) (*models.AttemptSession, error) {
	if attemptNumber < 1 {
		return nil, fmt.Errorf("attempt number must be positive, got %d", attemptNumber)
	}
	if totalQuestions < 1 {
		return nil, fmt.Errorf("total questions must be positive, got %d", totalQuestions)
	}

	session := &models.AttemptSession{
		AttemptNumber:        attemptNumber,
		CurrentQuestionIndex: 0,
		TotalQuestions:       totalQuestions,
		StartedAt:            time.Now().UTC(),
		Questions:            make(map[int]models.AnsweredQuestion),
	}

	encoded, err := encodeSession(session)
	if err != nil {
		return nil, err
	}

	if err := r.store.Set(ctx, sessionKey(userID, assessmentID, attemptNumber), encoded, constants.SessionTTL); err != nil {
		return nil, err
	}
	// The question hash has no fields yet, but the expiry keeps both keys
	// on one lifecycle once answers start landing.
	if err := r.store.Expire(ctx, questionsKey(userID, assessmentID, attemptNumber), constants.SessionTTL); err != nil {
		return nil, err
	}

	return session, nil
}

// Get returns the merged session view (scalar fields plus every stored
// question record) and refreshes the TTL on both keys. A missing session is
// (nil, nil), not an error; a present-but-malformed record is fatal.
func (r *SessionRepository) Get(ctx context.Context, userID, assessmentID string, attemptNumber int) (*models.AttemptSession, error) {
	skey := sessionKey(userID, assessmentID, attemptNumber)
	qkey := questionsKey(userID, assessmentID, attemptNumber)

	raw, ok, err := r.store.Get(ctx, skey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	session, err := decodeSession(raw)
	if err != nil {
		return nil, err
	}

	fields, err := r.store.HGetAll(ctx, qkey)
	if err != nil {
		return nil, err
	}

	session.Questions = make(map[int]models.AnsweredQuestion, len(fields))
	for field, value := range fields {
		index, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric question field %q", ErrCorruptSession, field)
		}
		question, err := decodeQuestion(value)
		if err != nil {
			return nil, err
		}
		session.Questions[index] = *question
	}

	if err := r.store.Expire(ctx, skey, constants.SessionTTL); err != nil {
		return nil, err
	}
	if err := r.store.Expire(ctx, qkey, constants.SessionTTL); err != nil {
		return nil, err
	}

	return session, nil
}

// UpdateSessionAndQuestion atomically records the answer for questionIndex
// and advances the session's expected index by one. The scalar key is
// watched for the whole read-modify-write cycle; losing the race to a
// concurrent writer retries the cycle up to MaxUpdateAttempts with
// exponential backoff. A submission for a negative index or a future index
// (past the expected next question) is rejected outright and never retried;
// a resubmission of
// an already-answered index is let through so the first-write-wins hash
// write can dedupe it.
//
// The returned flag reports whether the question field was actually
// written: always true in overwrite mode; in first-write-wins mode, false
// means a duplicate arrived after the real answer already landed.
func (r *SessionRepository) UpdateSessionAndQuestion(ctx context.Context, userID, assessmentID string, attemptNumber, questionIndex int, question models.AnsweredQuestion, overwrite bool) (bool, error) {
	encodedQuestion, err := encodeQuestion(&question)
	if err != nil {
		return false, err
	}

	for attempt := 0; attempt < constants.MaxUpdateAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(constants.UpdateRetryBaseDelay << (attempt - 1))
		}

		wasWritten, err := r.tryUpdate(ctx, userID, assessmentID, attemptNumber, questionIndex, encodedQuestion, overwrite)
		if errors.Is(err, ErrTxConflict) {
			log.Printf("Session update conflict for user=%s assessment=%s attempt=%d, retrying (%d/%d)",
				userID, assessmentID, attemptNumber, attempt+1, constants.MaxUpdateAttempts)
			continue
		}
		if err != nil {
			return false, err
		}
		return wasWritten, nil
	}

	return false, ErrConcurrentModification
}

func (r *SessionRepository) tryUpdate(ctx context.Context, userID, assessmentID string, attemptNumber, questionIndex int, encodedQuestion string, overwrite bool) (bool, error) {
	skey := sessionKey(userID, assessmentID, attemptNumber)
	qkey := questionsKey(userID, assessmentID, attemptNumber)

	var wasWritten bool
	err := r.store.Watch(ctx, func(tx Tx) error {
		raw, ok, err := tx.Get(ctx, skey)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSessionNotFound
		}

		session, err := decodeSession(raw)
		if err != nil {
			return err
		}

		if questionIndex < 0 {
			return fmt.Errorf("%w: negative index %d", ErrOutOfOrderSubmission, questionIndex)
		}
		if questionIndex >= session.TotalQuestions {
			return fmt.Errorf("%w: index %d beyond total questions %d",
				ErrOutOfOrderSubmission, questionIndex, session.TotalQuestions)
		}
		if questionIndex > session.CurrentQuestionIndex {
			return fmt.Errorf("%w: expected index %d, got %d",
				ErrOutOfOrderSubmission, session.CurrentQuestionIndex, questionIndex)
		}

		// Advance only, never regress: a retry of an already-answered index
		// leaves the expected index where it is.
		if next := questionIndex + 1; next > session.CurrentQuestionIndex {
			session.CurrentQuestionIndex = next
		}
		encoded, err := encodeSession(session)
		if err != nil {
			return err
		}

		field := strconv.Itoa(questionIndex)
		var nxResult *BoolResult
		if err := tx.Exec(ctx, func(pipe Pipeline) {
			if overwrite {
				pipe.HSet(qkey, field, encodedQuestion)
			} else {
				nxResult = pipe.HSetNX(qkey, field, encodedQuestion)
			}
			pipe.Set(skey, encoded, constants.SessionTTL)
			pipe.Expire(qkey, constants.SessionTTL)
		}); err != nil {
			return err
		}

		if overwrite {
			wasWritten = true
		} else {
			wasWritten = nxResult.Val()
		}
		return nil
	}, skey)

	return wasWritten, err
}

// MarkFinalized attaches the computed summary and flips the session to its
// terminal state, refreshing the TTL on both keys. Finalizing a session
// that has already expired or been deleted is not an error: there is
// nothing left to protect. Not protected by optimistic locking; the single
// owning caller invokes it once after all question updates are done.
func (r *SessionRepository) MarkFinalized(ctx context.Context, userID, assessmentID string, attemptNumber int, summary models.AttemptSummary) error {
	skey := sessionKey(userID, assessmentID, attemptNumber)

	raw, ok, err := r.store.Get(ctx, skey)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("No session to finalize for user=%s assessment=%s attempt=%d", userID, assessmentID, attemptNumber)
		return nil
	}

	session, err := decodeSession(raw)
	if err != nil {
		return err
	}

	session.IsFinalized = true
	session.FinalSummary = &summary

	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}

	if err := r.store.Set(ctx, skey, encoded, constants.SessionTTL); err != nil {
		return err
	}
	return r.store.Expire(ctx, questionsKey(userID, assessmentID, attemptNumber), constants.SessionTTL)
}

// MarkFinalizationFailed best-effort records why finalization processing
// failed without finalizing the session. The rewrite preserves the existing
// TTL: a failure marker must never extend or shorten the session's natural
// expiry. A missing or undecodable record is logged and swallowed.
func (r *SessionRepository) MarkFinalizationFailed(ctx context.Context, userID, assessmentID string, attemptNumber int, errorMessage string) error {
	skey := sessionKey(userID, assessmentID, attemptNumber)

	raw, ok, err := r.store.Get(ctx, skey)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("No session to mark finalization failure for user=%s assessment=%s attempt=%d", userID, assessmentID, attemptNumber)
		return nil
	}

	session, err := decodeSession(raw)
	if err != nil {
		log.Printf("Skipping finalization-failure mark for undecodable session user=%s assessment=%s attempt=%d: %v",
			userID, assessmentID, attemptNumber, err)
		return nil
	}

	session.FinalizationError = &errorMessage

	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}

	return r.store.SetKeepTTL(ctx, skey, encoded)
}

// Delete unconditionally removes both keys. Used for explicit attempt reset
// or abandonment.
func (r *SessionRepository) Delete(ctx context.Context, userID, assessmentID string, attemptNumber int) error {
	return r.store.Del(ctx,
		sessionKey(userID, assessmentID, attemptNumber),
		questionsKey(userID, assessmentID, attemptNumber),
	)
}
