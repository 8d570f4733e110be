package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"assessment-service/internal/dto"
	"assessment-service/internal/models"
	"assessment-service/internal/repository"
	"assessment-service/internal/service"

	"github.com/gin-gonic/gin"
)

type AttemptHandler struct {
	attemptService *service.AttemptService
}

func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
	}
}

func (h *AttemptHandler) RegisterRoutes(router *gin.Engine) {
	attempts := router.Group("/attempts")
	{
		attempts.POST("", h.StartAttempt)
		attempts.GET("/:assessmentId", h.GetLatestAttempt)
		attempts.GET("/:assessmentId/:attemptNumber", h.GetAttempt)
		attempts.POST("/:assessmentId/:attemptNumber/answers", h.SubmitAnswer)
		attempts.POST("/:assessmentId/:attemptNumber/report", h.ReportQuestion)
		attempts.POST("/:assessmentId/:attemptNumber/finalize", h.FinalizeAttempt)
		attempts.DELETE("/:assessmentId/:attemptNumber", h.AbandonAttempt)
	}
}

func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		dto.JsonError(c, http.StatusUnauthorized, "Missing user identity")
		return
	}

	var req dto.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.attemptService.StartAttempt(c.Request.Context(), userID, req.AssessmentID)
	if err != nil {
		handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.StartAttemptResponse{
		AssessmentID:         req.AssessmentID,
		AttemptNumber:        session.AttemptNumber,
		TotalQuestions:       session.TotalQuestions,
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		StartedAt:            session.StartedAt.Format(time.RFC3339),
	})
}

func (h *AttemptHandler) GetLatestAttempt(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		dto.JsonError(c, http.StatusUnauthorized, "Missing user identity")
		return
	}
	assessmentID := c.Param("assessmentId")

	lastAttemptNumber, err := h.attemptService.LatestAttemptNumber(c.Request.Context(), userID, assessmentID)
	if err != nil {
		handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.LatestAttemptResponse{
		AssessmentID:      assessmentID,
		LastAttemptNumber: lastAttemptNumber,
	})
}

func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	userID, assessmentID, attemptNumber, ok := attemptParams(c)
	if !ok {
		return
	}

	session, err := h.attemptService.GetAttempt(c.Request.Context(), userID, assessmentID, attemptNumber)
	if err != nil {
		handleAttemptError(c, err)
		return
	}
	if session == nil {
		dto.JsonError(c, http.StatusNotFound, "Attempt session not found")
		return
	}

	c.JSON(http.StatusOK, toGetAttemptResponse(session))
}

func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	userID, assessmentID, attemptNumber, ok := attemptParams(c)
	if !ok {
		return
	}

	var req dto.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Response) == 0 {
		dto.JsonError(c, http.StatusBadRequest, "Missing answer response")
		return
	}

	result, err := h.attemptService.SubmitAnswer(c.Request.Context(), userID, assessmentID, attemptNumber, req.QuestionIndex, req.Response)
	if err != nil {
		handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SubmitAnswerResponse{
		IsCorrect:         result.IsCorrect,
		WasWritten:        result.WasWritten,
		Completed:         result.Completed,
		NextQuestionIndex: result.NextQuestionIndex,
	})
}

func (h *AttemptHandler) ReportQuestion(c *gin.Context) {
	userID, assessmentID, attemptNumber, ok := attemptParams(c)
	if !ok {
		return
	}

	var req dto.ReportQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	_, err := h.attemptService.ReportQuestion(c.Request.Context(), userID, assessmentID, attemptNumber, req.QuestionIndex, req.Response)
	if err != nil {
		handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReportQuestionResponse{
		Reported:      true,
		QuestionIndex: req.QuestionIndex,
	})
}

func (h *AttemptHandler) FinalizeAttempt(c *gin.Context) {
	userID, assessmentID, attemptNumber, ok := attemptParams(c)
	if !ok {
		return
	}

	summary, err := h.attemptService.FinalizeAttempt(c.Request.Context(), userID, assessmentID, attemptNumber)
	if err != nil {
		handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FinalizeAttemptResponse{
		Summary: toSummaryDTO(summary),
	})
}

func (h *AttemptHandler) AbandonAttempt(c *gin.Context) {
	userID, assessmentID, attemptNumber, ok := attemptParams(c)
	if !ok {
		return
	}

	if err := h.attemptService.AbandonAttempt(c.Request.Context(), userID, assessmentID, attemptNumber); err != nil {
		handleAttemptError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func attemptParams(c *gin.Context) (userID, assessmentID string, attemptNumber int, ok bool) {
	userID = c.GetHeader("X-User-ID")
	if userID == "" {
		dto.JsonError(c, http.StatusUnauthorized, "Missing user identity")
		return "", "", 0, false
	}

	assessmentID = c.Param("assessmentId")

	attemptNumber, err := strconv.Atoi(c.Param("attemptNumber"))
	if err != nil || attemptNumber < 1 {
		dto.JsonError(c, http.StatusBadRequest, "Invalid attempt number")
		return "", "", 0, false
	}

	return userID, assessmentID, attemptNumber, true
}

func handleAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		dto.JsonError(c, http.StatusNotFound, "Attempt session not found")
	case errors.Is(err, repository.ErrOutOfOrderSubmission):
		dto.JsonError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrConcurrentModification):
		dto.JsonError(c, http.StatusConflict, "Concurrent modification, please resubmit")
	case errors.Is(err, repository.ErrStoreUnavailable):
		dto.JsonError(c, http.StatusServiceUnavailable, "Session store unavailable")
	case errors.Is(err, repository.ErrCorruptSession):
		dto.JsonError(c, http.StatusInternalServerError, "Stored session is corrupt")
	default:
		dto.JsonError(c, http.StatusInternalServerError, err.Error())
	}
}

func toGetAttemptResponse(session *models.AttemptSession) dto.GetAttemptResponse {
	questions := make(map[int]dto.AnsweredQuestionDTO, len(session.Questions))
	for index, question := range session.Questions {
		questions[index] = dto.AnsweredQuestionDTO{
			IsCorrect:  question.IsCorrect,
			Response:   question.Response,
			IsReported: question.IsReported,
		}
	}

	resp := dto.GetAttemptResponse{
		AttemptNumber:        session.AttemptNumber,
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		TotalQuestions:       session.TotalQuestions,
		StartedAt:            session.StartedAt.Format(time.RFC3339),
		IsFinalized:          session.IsFinalized,
		FinalizationError:    session.FinalizationError,
		Questions:            questions,
	}
	if session.FinalSummary != nil {
		summary := toSummaryDTO(session.FinalSummary)
		resp.FinalSummary = &summary
	}
	return resp
}

func toSummaryDTO(summary *models.AttemptSummary) dto.SummaryDTO {
	out := dto.SummaryDTO{
		Score:               summary.Score,
		CorrectAnswersCount: summary.CorrectAnswersCount,
		TotalQuestions:      summary.TotalQuestions,
	}
	if summary.XPPenaltyInfo != nil {
		out.XPPenaltyInfo = &dto.XPPenaltyInfoDTO{
			PenaltyApplied: summary.XPPenaltyInfo.PenaltyApplied,
			PenaltyPercent: summary.XPPenaltyInfo.PenaltyPercent,
			Reason:         summary.XPPenaltyInfo.Reason,
		}
	}
	return out
}
