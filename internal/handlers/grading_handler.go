package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/services"
	"github.com/openlearn-io/quiz-attempt-service/internal/utils"
)

// GradingHandler serves attempt completion, quiz scores, and score export.
type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
	attemptService services.AttemptService
}

func NewGradingHandler(
	gradingService services.GradingService,
	attemptService services.AttemptService,
	logger utils.Logger,
) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
		attemptService: attemptService,
	}
}

// CompleteAttempt finalizes an attempt
// @Summary Complete attempt
// @Description Seals the attempt with derived percentages; repeat calls return the sealed scores
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param metrics body services.DurationMetrics false "Final cumulative durations"
// @Success 200 {object} services.CompletionResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /attempts/{id}/complete [post]
func (h *GradingHandler) CompleteAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var metrics *services.DurationMetrics
	if c.Request.ContentLength > 0 {
		metrics = &services.DurationMetrics{}
		if err := c.ShouldBindJSON(metrics); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request payload",
				Details: err.Error(),
			})
			return
		}
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	if !h.authorizeAttempt(c, h.attemptService, id, actor) {
		return
	}

	h.LogRequest(c, "Completing attempt", "attempt_id", id)

	result, err := h.gradingService.CompleteAttempt(c.Request.Context(), id, metrics)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetQuizScore returns the strategy-selected quiz score
// @Summary Get quiz score
// @Description Returns the quiz-level score selected by the grading strategy across completed attempts
// @Tags grading
// @Produce json
// @Param quiz_id path uint true "Quiz ID"
// @Param user_id query string false "Target user (instructors only; defaults to caller)"
// @Success 200 {object} services.QuizScoreResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /quizzes/{quiz_id}/score [get]
func (h *GradingHandler) GetQuizScore(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	userID, ok := h.resolveTargetUser(c, actor)
	if !ok {
		return
	}

	score, err := h.gradingService.CalculateQuizScore(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

// ExportQuizScores downloads a user's scores as XLSX
// @Summary Export quiz scores
// @Description Renders the per-attempt scores and strategy outcome as an XLSX workbook
// @Tags grading
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param quiz_id path uint true "Quiz ID"
// @Param user_id query string false "Target user (defaults to caller)"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /quizzes/{quiz_id}/score/export [get]
func (h *GradingHandler) ExportQuizScores(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}
	userID, ok := h.resolveTargetUser(c, actor)
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting quiz scores", "quiz_id", quizID, "target_user", userID)

	f, err := h.gradingService.ExportQuizScores(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("quiz_%d_scores.xlsx", quizID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		h.LogError(c, err, "Failed to stream score export", "quiz_id", quizID)
	}
}

// resolveTargetUser applies the user_id query override. Students may only
// read their own scores.
func (h *GradingHandler) resolveTargetUser(c *gin.Context, actor models.Actor) (string, bool) {
	userID := c.Query("user_id")
	if userID == "" || userID == actor.UserID {
		return actor.UserID, true
	}
	if !actor.Role.IsPrivileged() {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: "students may only read their own scores",
		})
		return "", false
	}
	return userID, true
}
