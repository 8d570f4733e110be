package models

import (
	"encoding/json"
	"time"
)

// AttemptSession is the ephemeral state tracked for one assessment attempt.
// CurrentQuestionIndex is the index of the next question expected to be
// answered and only ever advances by submitting an answer for exactly that
// index.
type AttemptSession struct {
	AttemptNumber        int             `json:"attemptNumber"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	TotalQuestions       int             `json:"totalQuestions"`
	StartedAt            time.Time       `json:"startedAt"`
	IsFinalized          bool            `json:"isFinalized"`
	FinalizationError    *string         `json:"finalizationError,omitempty"`
	FinalSummary         *AttemptSummary `json:"finalSummary,omitempty"`

	// Questions is the merged per-question view, keyed by question index.
	// It lives in a separate hash key and is never part of the scalar blob.
	Questions map[int]AnsweredQuestion `json:"-"`
}

// AnsweredQuestion is one stored answer. A nil IsCorrect means the question
// was reported as a content issue and is excluded from scoring. Response is
// an opaque caller payload (string, list, or keyed map) stored verbatim.
type AnsweredQuestion struct {
	IsCorrect  *bool           `json:"isCorrect"`
	Response   json.RawMessage `json:"response"`
	IsReported bool            `json:"isReported,omitempty"`
}

type AttemptSummary struct {
	Score               int            `json:"score"`
	CorrectAnswersCount int            `json:"correctAnswersCount"`
	TotalQuestions      int            `json:"totalQuestions"`
	XPPenaltyInfo       *XPPenaltyInfo `json:"xpPenaltyInfo,omitempty"`
}

type XPPenaltyInfo struct {
	PenaltyApplied bool   `json:"penaltyApplied"`
	PenaltyPercent int    `json:"penaltyPercent"`
	Reason         string `json:"reason,omitempty"`
}

// Assessment is the content-service view of an assessment: enough to know
// how many questions there are and to score raw responses.
type Assessment struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	OrderIndex    int      `json:"order_index"`
}
