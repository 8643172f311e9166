package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlearn-io/quiz-attempt-service/internal/services"
	"github.com/openlearn-io/quiz-attempt-service/internal/utils"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	resultService  services.ResultService
	validator      *validator.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	resultService services.ResultService,
	validator *validator.Validator,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		resultService:  resultService,
		validator:      validator,
	}
}

// CreateAttempt starts a new quiz attempt
// @Summary Start quiz attempt
// @Description Starts a new attempt for a quiz, subject to eligibility checks
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.CreateAttemptRequest true "Create attempt data"
// @Success 201 {object} services.CreateAttemptResult
// @Success 200 {object} services.CreateAttemptResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts [post]
func (h *AttemptHandler) CreateAttempt(c *gin.Context) {
	h.LogRequest(c, "Creating quiz attempt")

	var req services.CreateAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	result, err := h.attemptService.Create(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	// Refusals are 200s: the request was handled, no attempt was started.
	if !result.Success {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetAttempt retrieves an attempt by ID
// @Summary Get attempt
// @Description Retrieves an attempt with its timing and ledger state
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} models.QuizAttempt
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ListAttempts lists the caller's attempts for a quiz
// @Summary List attempts
// @Description Lists the caller's attempts for a quiz, newest first
// @Tags attempts
// @Produce json
// @Param quiz_id path uint true "Quiz ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /quizzes/{quiz_id}/attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Listing attempts", "quiz_id", quizID, "user_id", actor.UserID)

	attempts, err := h.attemptService.ListByQuizAndUser(c.Request.Context(), quizID, actor.UserID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Attempts retrieved successfully",
		Data:    attempts,
	})
}

// SubmitQuestionResult records one question outcome
// @Summary Submit question result
// @Description Records a per-question outcome in the attempt's ledger; resubmits replace
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param result body services.SubmitQuestionResultRequest true "Question result"
// @Success 200 {object} services.AppendResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/results [post]
func (h *AttemptHandler) SubmitQuestionResult(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.SubmitQuestionResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	if !h.authorizeAttempt(c, h.attemptService, id, actor) {
		return
	}

	h.LogRequest(c, "Submitting question result", "attempt_id", id, "question_num", req.QuestionNum)

	result, err := h.resultService.AppendQuestionResult(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetQuestionResults returns the attempt's ledger
// @Summary Get question results
// @Description Returns the attempt's per-question results ordered by question number
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/results [get]
func (h *AttemptHandler) GetQuestionResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	if !h.authorizeAttempt(c, h.attemptService, id, actor) {
		return
	}

	results, err := h.resultService.GetQuestionResults(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Question results retrieved successfully",
		Data:    results,
	})
}
