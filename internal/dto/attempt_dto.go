package dto

import "encoding/json"

type StartAttemptRequest struct {
	AssessmentID string `json:"assessment_id" binding:"required"`
}

type StartAttemptResponse struct {
	AssessmentID         string `json:"assessment_id"`
	AttemptNumber        int    `json:"attempt_number"`
	TotalQuestions       int    `json:"total_questions"`
	CurrentQuestionIndex int    `json:"current_question_index"`
	StartedAt            string `json:"started_at"`
}

type SubmitAnswerRequest struct {
	QuestionIndex int             `json:"question_index"`
	Response      json.RawMessage `json:"response"`
}

type SubmitAnswerResponse struct {
	IsCorrect         bool `json:"is_correct"`
	WasWritten        bool `json:"was_written"`
	Completed         bool `json:"completed"`
	NextQuestionIndex int  `json:"next_question_index"`
}

type ReportQuestionRequest struct {
	QuestionIndex int             `json:"question_index"`
	Response      json.RawMessage `json:"response,omitempty"`
}

type ReportQuestionResponse struct {
	Reported      bool `json:"reported"`
	QuestionIndex int  `json:"question_index"`
}

type AnsweredQuestionDTO struct {
	IsCorrect  *bool           `json:"is_correct"`
	Response   json.RawMessage `json:"response"`
	IsReported bool            `json:"is_reported,omitempty"`
}

type SummaryDTO struct {
	Score               int               `json:"score"`
	CorrectAnswersCount int               `json:"correct_answers_count"`
	TotalQuestions      int               `json:"total_questions"`
	XPPenaltyInfo       *XPPenaltyInfoDTO `json:"xp_penalty_info,omitempty"`
}

type XPPenaltyInfoDTO struct {
	PenaltyApplied bool   `json:"penalty_applied"`
	PenaltyPercent int    `json:"penalty_percent"`
	Reason         string `json:"reason,omitempty"`
}

type GetAttemptResponse struct {
	AttemptNumber        int                         `json:"attempt_number"`
	CurrentQuestionIndex int                         `json:"current_question_index"`
	TotalQuestions       int                         `json:"total_questions"`
	StartedAt            string                      `json:"started_at"`
	IsFinalized          bool                        `json:"is_finalized"`
	FinalizationError    *string                     `json:"finalization_error,omitempty"`
	FinalSummary         *SummaryDTO                 `json:"final_summary,omitempty"`
	Questions            map[int]AnsweredQuestionDTO `json:"questions"`
}

type LatestAttemptResponse struct {
	AssessmentID      string `json:"assessment_id"`
	LastAttemptNumber int    `json:"last_attempt_number"`
}

type FinalizeAttemptResponse struct {
	Summary SummaryDTO `json:"summary"`
}
