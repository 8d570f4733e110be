package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"assessment-service/internal/constants"
	"assessment-service/internal/models"
	"assessment-service/internal/repository"

	"github.com/google/uuid"
)

type Sessions interface {
	Create(ctx context.Context, userID, assessmentID string, attemptNumber, totalQuestions int) (*models.AttemptSession, error)
	Get(ctx context.Context, userID, assessmentID string, attemptNumber int) (*models.AttemptSession, error)
	UpdateSessionAndQuestion(ctx context.Context, userID, assessmentID string, attemptNumber, questionIndex int, question models.AnsweredQuestion, overwrite bool) (bool, error)
	MarkFinalized(ctx context.Context, userID, assessmentID string, attemptNumber int, summary models.AttemptSummary) error
	MarkFinalizationFailed(ctx context.Context, userID, assessmentID string, attemptNumber int, errorMessage string) error
	Delete(ctx context.Context, userID, assessmentID string, attemptNumber int) error
}

type Sequencer interface {
	NextAttemptNumber(ctx context.Context, userID, assessmentID string) (int, error)
	LastAttemptNumber(ctx context.Context, userID, assessmentID string) (int, error)
}

type AssessmentProvider interface {
	GetAssessment(ctx context.Context, assessmentID string) (*models.Assessment, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

type AttemptService struct {
	sessions    Sessions
	sequencer   Sequencer
	assessments AssessmentProvider
	publisher   EventPublisher
}

func NewAttemptService(sessions Sessions, sequencer Sequencer, assessments AssessmentProvider, publisher EventPublisher) *AttemptService {
	return &AttemptService{
		sessions:    sessions,
		sequencer:   sequencer,
		assessments: assessments,
		publisher:   publisher,
	}
}

type AnswerResult struct {
	IsCorrect         bool
	WasWritten        bool
	Completed         bool
	NextQuestionIndex int
}

// AttemptFinalizedEvent is the gradebook handoff payload. EventID gives
// downstream consumers an idempotency key; delivery is at-least-once.
type AttemptFinalizedEvent struct {
	EventID       string                `json:"event_id"`
	UserID        string                `json:"user_id"`
	AssessmentID  string                `json:"assessment_id"`
	AttemptNumber int                   `json:"attempt_number"`
	Summary       models.AttemptSummary `json:"summary"`
	FinalizedAt   time.Time             `json:"finalized_at"`
}

// StartAttempt assigns the next attempt number for the user and creates a
// fresh session sized to the assessment's question count.
func (s *AttemptService) StartAttempt(ctx context.Context, userID, assessmentID string) (*models.AttemptSession, error) {
	assessment, err := s.assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	attemptNumber, err := s.sequencer.NextAttemptNumber(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, userID, assessmentID, attemptNumber, len(assessment.Questions))
	if err != nil {
		return nil, err
	}

	log.Printf("Started attempt %d for user=%s assessment=%s (%d questions)",
		attemptNumber, userID, assessmentID, len(assessment.Questions))
	return session, nil
}

// SubmitAnswer scores the raw response against the assessment content and
// records it atomically. Duplicate submissions for an already-answered
// index are deduplicated (WasWritten=false) rather than failing.
func (s *AttemptService) SubmitAnswer(ctx context.Context, userID, assessmentID string, attemptNumber, questionIndex int, response json.RawMessage) (*AnswerResult, error) {
	assessment, err := s.assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if questionIndex < 0 || questionIndex >= len(assessment.Questions) {
		return nil, fmt.Errorf("question index %d out of range for assessment %s", questionIndex, assessmentID)
	}

	isCorrect := scoreResponse(response, assessment.Questions[questionIndex].CorrectAnswer)

	wasWritten, err := s.sessions.UpdateSessionAndQuestion(ctx, userID, assessmentID, attemptNumber, questionIndex,
		models.AnsweredQuestion{
			IsCorrect: &isCorrect,
			Response:  response,
		}, false)
	if err != nil {
		return nil, err
	}

	return &AnswerResult{
		IsCorrect:         isCorrect,
		WasWritten:        wasWritten,
		Completed:         questionIndex+1 >= len(assessment.Questions),
		NextQuestionIndex: questionIndex + 1,
	}, nil
}

// ReportQuestion flags the question as a content issue. The record carries
// a nil correctness so scoring excludes it, and overwrites any answer the
// user already gave for that index.
func (s *AttemptService) ReportQuestion(ctx context.Context, userID, assessmentID string, attemptNumber, questionIndex int, response json.RawMessage) (*AnswerResult, error) {
	assessment, err := s.assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if questionIndex < 0 || questionIndex >= len(assessment.Questions) {
		return nil, fmt.Errorf("question index %d out of range for assessment %s", questionIndex, assessmentID)
	}

	if len(response) == 0 {
		response = json.RawMessage("null")
	}

	wasWritten, err := s.sessions.UpdateSessionAndQuestion(ctx, userID, assessmentID, attemptNumber, questionIndex,
		models.AnsweredQuestion{
			IsCorrect:  nil,
			Response:   response,
			IsReported: true,
		}, true)
	if err != nil {
		return nil, err
	}

	return &AnswerResult{
		IsCorrect:         false,
		WasWritten:        wasWritten,
		Completed:         questionIndex+1 >= len(assessment.Questions),
		NextQuestionIndex: questionIndex + 1,
	}, nil
}

// FinalizeAttempt computes the attempt summary, hands it to the gradebook
// queue, and marks the session finalized. If the handoff fails, the failure
// reason is recorded on the session without destroying progress and the
// error is surfaced.
func (s *AttemptService) FinalizeAttempt(ctx context.Context, userID, assessmentID string, attemptNumber int) (*models.AttemptSummary, error) {
	session, err := s.sessions.Get(ctx, userID, assessmentID, attemptNumber)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, repository.ErrSessionNotFound
	}
	if session.IsFinalized {
		return session.FinalSummary, nil
	}

	summary := computeSummary(session, attemptNumber)

	event := AttemptFinalizedEvent{
		EventID:       uuid.NewString(),
		UserID:        userID,
		AssessmentID:  assessmentID,
		AttemptNumber: attemptNumber,
		Summary:       summary,
		FinalizedAt:   time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode finalized event: %w", err)
	}

	if err := s.publisher.Publish(ctx, constants.AttemptFinalizedQueue, body); err != nil {
		reason := fmt.Sprintf("gradebook handoff failed: %v", err)
		if markErr := s.sessions.MarkFinalizationFailed(ctx, userID, assessmentID, attemptNumber, reason); markErr != nil {
			log.Printf("Failed to record finalization failure for user=%s assessment=%s attempt=%d: %v",
				userID, assessmentID, attemptNumber, markErr)
		}
		return nil, fmt.Errorf("failed to finalize attempt: %w", err)
	}

	if err := s.sessions.MarkFinalized(ctx, userID, assessmentID, attemptNumber, summary); err != nil {
		return nil, err
	}

	log.Printf("Finalized attempt %d for user=%s assessment=%s: score=%d correct=%d/%d",
		attemptNumber, userID, assessmentID, summary.Score, summary.CorrectAnswersCount, summary.TotalQuestions)
	return &summary, nil
}

func (s *AttemptService) GetAttempt(ctx context.Context, userID, assessmentID string, attemptNumber int) (*models.AttemptSession, error) {
	return s.sessions.Get(ctx, userID, assessmentID, attemptNumber)
}

// LatestAttemptNumber returns the highest attempt number assigned to the
// user for this assessment, or zero if no attempt was ever started.
func (s *AttemptService) LatestAttemptNumber(ctx context.Context, userID, assessmentID string) (int, error) {
	return s.sequencer.LastAttemptNumber(ctx, userID, assessmentID)
}

func (s *AttemptService) AbandonAttempt(ctx context.Context, userID, assessmentID string, attemptNumber int) error {
	return s.sessions.Delete(ctx, userID, assessmentID, attemptNumber)
}

// computeSummary scores the attempt over its scorable questions. Reported
// questions (nil correctness) are excluded from the denominator.
func computeSummary(session *models.AttemptSession, attemptNumber int) models.AttemptSummary {
	scorable := 0
	correct := 0
	for _, question := range session.Questions {
		if question.IsReported || question.IsCorrect == nil {
			continue
		}
		scorable++
		if *question.IsCorrect {
			correct++
		}
	}

	score := 0
	if scorable > 0 {
		score = int(math.Round(float64(correct) / float64(scorable) * 100))
	}

	summary := models.AttemptSummary{
		Score:               score,
		CorrectAnswersCount: correct,
		TotalQuestions:      session.TotalQuestions,
	}

	if attemptNumber > 1 {
		summary.XPPenaltyInfo = &models.XPPenaltyInfo{
			PenaltyApplied: true,
			PenaltyPercent: 50,
			Reason:         fmt.Sprintf("repeat attempt %d", attemptNumber),
		}
	}

	return summary
}

// scoreResponse compares an opaque response payload against the expected
// answer. String responses compare case-insensitively; list responses
// compare as an unordered set against a comma-separated expected answer.
// Anything else is not auto-scorable and counts as incorrect.
func scoreResponse(response json.RawMessage, correctAnswer string) bool {
	var text string
	if err := json.Unmarshal(response, &text); err == nil {
		return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(correctAnswer))
	}

	var list []string
	if err := json.Unmarshal(response, &list); err == nil {
		expected := strings.Split(correctAnswer, ",")
		if len(list) != len(expected) {
			return false
		}
		normalize := func(values []string) []string {
			out := make([]string, len(values))
			for i, v := range values {
				out[i] = strings.ToLower(strings.TrimSpace(v))
			}
			sort.Strings(out)
			return out
		}
		got := normalize(list)
		want := normalize(expected)
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}

	return false
}
