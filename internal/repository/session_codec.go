package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"assessment-service/internal/models"
)

// The codec is deliberately strict in both directions: records are written
// as plain JSON, and anything read back that does not decode to the exact
// expected shape is a hard ErrCorruptSession. A previously-written
// invariant violation is never papered over with defaults.

func encodeSession(session *models.AttemptSession) (string, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return string(data), nil
}

func decodeSession(data string) (*models.AttemptSession, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()

	var session models.AttemptSession
	if err := dec.Decode(&session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if err := validateSession(&session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return &session, nil
}

func validateSession(session *models.AttemptSession) error {
	if session.AttemptNumber < 1 {
		return fmt.Errorf("attemptNumber must be positive, got %d", session.AttemptNumber)
	}
	if session.CurrentQuestionIndex < 0 {
		return fmt.Errorf("currentQuestionIndex must not be negative, got %d", session.CurrentQuestionIndex)
	}
	if session.TotalQuestions < 1 {
		return fmt.Errorf("totalQuestions must be positive, got %d", session.TotalQuestions)
	}
	if session.CurrentQuestionIndex > session.TotalQuestions {
		return fmt.Errorf("currentQuestionIndex %d exceeds totalQuestions %d",
			session.CurrentQuestionIndex, session.TotalQuestions)
	}
	if session.StartedAt.IsZero() {
		return fmt.Errorf("startedAt is missing")
	}
	if session.IsFinalized != (session.FinalSummary != nil) {
		return fmt.Errorf("isFinalized=%v but finalSummary present=%v",
			session.IsFinalized, session.FinalSummary != nil)
	}
	if session.FinalSummary != nil && session.FinalSummary.TotalQuestions < 1 {
		return fmt.Errorf("finalSummary.totalQuestions must be positive, got %d",
			session.FinalSummary.TotalQuestions)
	}
	return nil
}

func encodeQuestion(question *models.AnsweredQuestion) (string, error) {
	data, err := json.Marshal(question)
	if err != nil {
		return "", fmt.Errorf("failed to encode question record: %w", err)
	}
	return string(data), nil
}

func decodeQuestion(data string) (*models.AnsweredQuestion, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()

	var question models.AnsweredQuestion
	if err := dec.Decode(&question); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if len(question.Response) == 0 {
		return nil, fmt.Errorf("%w: question record has no response payload", ErrCorruptSession)
	}
	return &question, nil
}
