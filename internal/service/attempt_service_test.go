package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"assessment-service/internal/constants"
	"assessment-service/internal/models"
	"assessment-service/internal/repository"
)

type fakeSessions struct {
	session    *fakeStoredSession
	failReason string
}

type fakeStoredSession struct {
	userID       string
	assessmentID string
	session      models.AttemptSession
}

func (f *fakeSessions) Create(ctx context.Context, userID, assessmentID string, attemptNumber, totalQuestions int) (*models.AttemptSession, error) {
	session := models.AttemptSession{
		AttemptNumber:  attemptNumber,
		TotalQuestions: totalQuestions,
		StartedAt:      time.Now().UTC(),
		Questions:      make(map[int]models.AnsweredQuestion),
	}
	f.session = &fakeStoredSession{userID: userID, assessmentID: assessmentID, session: session}
	out := session
	return &out, nil
}

func (f *fakeSessions) Get(ctx context.Context, userID, assessmentID string, attemptNumber int) (*models.AttemptSession, error) {
	if f.session == nil || f.session.session.AttemptNumber != attemptNumber {
		return nil, nil
	}
	out := f.session.session
	return &out, nil
}

func (f *fakeSessions) UpdateSessionAndQuestion(ctx context.Context, userID, assessmentID string, attemptNumber, questionIndex int, question models.AnsweredQuestion, overwrite bool) (bool, error) {
	if f.session == nil {
		return false, repository.ErrSessionNotFound
	}
	session := &f.session.session
	if questionIndex > session.CurrentQuestionIndex {
		return false, repository.ErrOutOfOrderSubmission
	}

	_, exists := session.Questions[questionIndex]
	if exists && !overwrite {
		return false, nil
	}
	session.Questions[questionIndex] = question
	if next := questionIndex + 1; next > session.CurrentQuestionIndex {
		session.CurrentQuestionIndex = next
	}
	return true, nil
}

func (f *fakeSessions) MarkFinalized(ctx context.Context, userID, assessmentID string, attemptNumber int, summary models.AttemptSummary) error {
	if f.session == nil {
		return nil
	}
	f.session.session.IsFinalized = true
	f.session.session.FinalSummary = &summary
	return nil
}

func (f *fakeSessions) MarkFinalizationFailed(ctx context.Context, userID, assessmentID string, attemptNumber int, errorMessage string) error {
	f.failReason = errorMessage
	return nil
}

func (f *fakeSessions) Delete(ctx context.Context, userID, assessmentID string, attemptNumber int) error {
	f.session = nil
	return nil
}

type fakeSequencer struct {
	next int
}

func (f *fakeSequencer) NextAttemptNumber(ctx context.Context, userID, assessmentID string) (int, error) {
	f.next++
	return f.next, nil
}

func (f *fakeSequencer) LastAttemptNumber(ctx context.Context, userID, assessmentID string) (int, error) {
	return f.next, nil
}

type fakeAssessments struct {
	assessment *models.Assessment
}

func (f *fakeAssessments) GetAssessment(ctx context.Context, assessmentID string) (*models.Assessment, error) {
	if f.assessment == nil {
		return nil, fmt.Errorf("assessment %s not found", assessmentID)
	}
	return f.assessment, nil
}

type fakePublisher struct {
	published map[string][][]byte
	fail      bool
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, body []byte) error {
	if f.fail {
		return fmt.Errorf("broker unreachable")
	}
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[queueName] = append(f.published[queueName], body)
	return nil
}

func threeQuestionAssessment() *models.Assessment {
	return &models.Assessment{
		ID:    "a1",
		Title: "Fractions",
		Questions: []models.Question{
			{ID: "q1", CorrectAnswer: "B"},
			{ID: "q2", CorrectAnswer: "B"},
			{ID: "q3", CorrectAnswer: "X,Y"},
		},
	}
}

func newTestService() (*AttemptService, *fakeSessions, *fakePublisher) {
	sessions := &fakeSessions{}
	publisher := &fakePublisher{}
	svc := NewAttemptService(sessions, &fakeSequencer{}, &fakeAssessments{assessment: threeQuestionAssessment()}, publisher)
	return svc, sessions, publisher
}

func TestStartAttemptAssignsSequentialNumbers(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	first, err := svc.StartAttempt(ctx, "u1", "a1")
	if err != nil {
		t.Fatalf("start first attempt: %v", err)
	}
	if first.AttemptNumber != 1 {
		t.Errorf("first attempt number = %d, want 1", first.AttemptNumber)
	}
	if first.TotalQuestions != 3 {
		t.Errorf("total questions = %d, want 3", first.TotalQuestions)
	}

	second, err := svc.StartAttempt(ctx, "u1", "a1")
	if err != nil {
		t.Fatalf("start second attempt: %v", err)
	}
	if second.AttemptNumber != 2 {
		t.Errorf("second attempt number = %d, want 2", second.AttemptNumber)
	}
}

func TestLatestAttemptNumber(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	last, err := svc.LatestAttemptNumber(ctx, "u1", "a1")
	if err != nil {
		t.Fatalf("latest attempt number: %v", err)
	}
	if last != 0 {
		t.Errorf("latest attempt = %d, want 0 before any attempt", last)
	}

	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}

	last, err = svc.LatestAttemptNumber(ctx, "u1", "a1")
	if err != nil {
		t.Fatalf("latest attempt number: %v", err)
	}
	if last != 2 {
		t.Errorf("latest attempt = %d, want 2", last)
	}
}

func TestSubmitAnswerScoresAndRecords(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newTestService()
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}

	result, err := svc.SubmitAnswer(ctx, "u1", "a1", 1, 0, json.RawMessage(`"b"`))
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if !result.IsCorrect {
		t.Error("case-insensitive match scored incorrect")
	}
	if !result.WasWritten {
		t.Error("wasWritten = false, want true")
	}
	if result.Completed {
		t.Error("completed after first of three questions")
	}
	if result.NextQuestionIndex != 1 {
		t.Errorf("next question index = %d, want 1", result.NextQuestionIndex)
	}

	stored := sessions.session.session.Questions[0]
	if stored.IsCorrect == nil || !*stored.IsCorrect {
		t.Error("stored correctness wrong")
	}
	if string(stored.Response) != `"b"` {
		t.Errorf("stored response = %s, want verbatim payload", stored.Response)
	}
}

func TestSubmitAnswerListResponse(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	for i, payload := range []string{`"B"`, `"A"`} {
		if _, err := svc.SubmitAnswer(ctx, "u1", "a1", 1, i, json.RawMessage(payload)); err != nil {
			t.Fatalf("submit answer %d: %v", i, err)
		}
	}

	result, err := svc.SubmitAnswer(ctx, "u1", "a1", 1, 2, json.RawMessage(`["Y","x"]`))
	if err != nil {
		t.Fatalf("submit list answer: %v", err)
	}
	if !result.IsCorrect {
		t.Error("unordered list match scored incorrect")
	}
	if !result.Completed {
		t.Error("completed = false after last question")
	}
}

func TestSubmitAnswerOutOfRangeIndex(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}

	if _, err := svc.SubmitAnswer(ctx, "u1", "a1", 1, 3, json.RawMessage(`"B"`)); err == nil {
		t.Error("expected error for out-of-range question index")
	}
}

func TestReportQuestionExcludesFromScoring(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newTestService()
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}

	if _, err := svc.ReportQuestion(ctx, "u1", "a1", 1, 0, json.RawMessage(`"ambiguous options"`)); err != nil {
		t.Fatalf("report question: %v", err)
	}

	stored := sessions.session.session.Questions[0]
	if stored.IsCorrect != nil {
		t.Errorf("reported question isCorrect = %v, want nil", stored.IsCorrect)
	}
	if !stored.IsReported {
		t.Error("isReported = false, want true")
	}
}

func TestFinalizeAttemptPublishesAndFinalizes(t *testing.T) {
	ctx := context.Background()
	svc, sessions, publisher := newTestService()
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	for i, payload := range []string{`"B"`, `"A"`, `["X","Y"]`} {
		if _, err := svc.SubmitAnswer(ctx, "u1", "a1", 1, i, json.RawMessage(payload)); err != nil {
			t.Fatalf("submit answer %d: %v", i, err)
		}
	}

	summary, err := svc.FinalizeAttempt(ctx, "u1", "a1", 1)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if summary.Score != 67 {
		t.Errorf("score = %d, want 67", summary.Score)
	}
	if summary.CorrectAnswersCount != 2 {
		t.Errorf("correct answers = %d, want 2", summary.CorrectAnswersCount)
	}
	if summary.TotalQuestions != 3 {
		t.Errorf("total questions = %d, want 3", summary.TotalQuestions)
	}
	if summary.XPPenaltyInfo != nil {
		t.Error("first attempt must not carry an XP penalty")
	}

	if !sessions.session.session.IsFinalized {
		t.Error("session not marked finalized")
	}

	events := publisher.published[constants.AttemptFinalizedQueue]
	if len(events) != 1 {
		t.Fatalf("published events = %d, want 1", len(events))
	}
	var event AttemptFinalizedEvent
	if err := json.Unmarshal(events[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.EventID == "" {
		t.Error("event missing idempotency id")
	}
	if event.UserID != "u1" || event.AssessmentID != "a1" || event.AttemptNumber != 1 {
		t.Errorf("event identifiers = %s/%s/%d", event.UserID, event.AssessmentID, event.AttemptNumber)
	}
	if event.Summary.Score != 67 {
		t.Errorf("event score = %d, want 67", event.Summary.Score)
	}
}

func TestFinalizeAttemptIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, publisher := newTestService()
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	for i, payload := range []string{`"B"`, `"B"`, `["X","Y"]`} {
		if _, err := svc.SubmitAnswer(ctx, "u1", "a1", 1, i, json.RawMessage(payload)); err != nil {
			t.Fatalf("submit answer %d: %v", i, err)
		}
	}

	if _, err := svc.FinalizeAttempt(ctx, "u1", "a1", 1); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	summary, err := svc.FinalizeAttempt(ctx, "u1", "a1", 1)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if summary == nil || summary.Score != 100 {
		t.Errorf("second finalize summary = %+v, want existing summary", summary)
	}
	if got := len(publisher.published[constants.AttemptFinalizedQueue]); got != 1 {
		t.Errorf("published events = %d, want 1 (no re-publish)", got)
	}
}

func TestFinalizeAttemptMissingSession(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.FinalizeAttempt(context.Background(), "u1", "a1", 9)
	if !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestFinalizeAttemptRecordsHandoffFailure(t *testing.T) {
	ctx := context.Background()
	svc, sessions, publisher := newTestService()
	publisher.fail = true

	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, "u1", "a1", 1, 0, json.RawMessage(`"B"`)); err != nil {
		t.Fatalf("submit answer: %v", err)
	}

	if _, err := svc.FinalizeAttempt(ctx, "u1", "a1", 1); err == nil {
		t.Fatal("expected finalize to fail when handoff fails")
	}
	if sessions.failReason == "" {
		t.Error("finalization failure reason not recorded")
	}
	if sessions.session.session.IsFinalized {
		t.Error("session must not be finalized after handoff failure")
	}
}

func TestFinalizeRepeatAttemptCarriesXPPenalty(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start first attempt: %v", err)
	}
	if _, err := svc.StartAttempt(ctx, "u1", "a1"); err != nil {
		t.Fatalf("start second attempt: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, "u1", "a1", 2, 0, json.RawMessage(`"B"`)); err != nil {
		t.Fatalf("submit answer: %v", err)
	}

	summary, err := svc.FinalizeAttempt(ctx, "u1", "a1", 2)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if summary.XPPenaltyInfo == nil || !summary.XPPenaltyInfo.PenaltyApplied {
		t.Fatalf("repeat attempt summary missing XP penalty: %+v", summary.XPPenaltyInfo)
	}
}

func TestComputeSummaryExcludesReportedQuestions(t *testing.T) {
	correct := true
	wrong := false
	session := &models.AttemptSession{
		TotalQuestions: 3,
		Questions: map[int]models.AnsweredQuestion{
			0: {IsCorrect: &correct, Response: json.RawMessage(`"B"`)},
			1: {IsCorrect: nil, Response: json.RawMessage(`"bad question"`), IsReported: true},
			2: {IsCorrect: &wrong, Response: json.RawMessage(`"A"`)},
		},
	}

	summary := computeSummary(session, 1)
	if summary.Score != 50 {
		t.Errorf("score = %d, want 50 (reported question excluded)", summary.Score)
	}
	if summary.CorrectAnswersCount != 1 {
		t.Errorf("correct answers = %d, want 1", summary.CorrectAnswersCount)
	}
	if summary.TotalQuestions != 3 {
		t.Errorf("total questions = %d, want 3", summary.TotalQuestions)
	}
}

func TestScoreResponse(t *testing.T) {
	cases := []struct {
		name     string
		response string
		correct  string
		want     bool
	}{
		{"exact string", `"B"`, "B", true},
		{"case insensitive", `" b "`, "B", true},
		{"wrong string", `"A"`, "B", false},
		{"unordered list", `["y","X"]`, "X,Y", true},
		{"list length mismatch", `["X"]`, "X,Y", false},
		{"keyed map not auto-scorable", `{"left":"X"}`, "X", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scoreResponse(json.RawMessage(tc.response), tc.correct); got != tc.want {
				t.Errorf("scoreResponse(%s, %q) = %v, want %v", tc.response, tc.correct, got, tc.want)
			}
		})
	}
}
