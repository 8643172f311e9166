package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/services"
	"github.com/openlearn-io/quiz-attempt-service/internal/utils"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

// ErrorResponse is the standard handler error payload.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps responses that have no dedicated body type.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries the shared handler plumbing.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.FromContext(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.FromContext(c, h.logger).Error(msg, append(args, "error", err)...)
}

// parseIDParam parses a positive uint path parameter. On failure it writes the
// 400 response and returns 0; callers must bail out on 0.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
		})
		return 0
	}
	return uint(id)
}

// actorFromContext reads the authenticated caller set by the auth middleware.
// Writes the 401 response itself when missing.
func (h *BaseHandler) actorFromContext(c *gin.Context) (models.Actor, bool) {
	v, exists := c.Get("actor")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return models.Actor{}, false
	}
	return actor, true
}

// authorizeAttempt verifies the caller may touch the attempt. The lookup goes
// through the cached read path, so the extra fetch stays off the database for
// hot attempts. Writes the error response itself on failure.
func (h *BaseHandler) authorizeAttempt(c *gin.Context, svc services.AttemptService, attemptID uint, actor models.Actor) bool {
	if _, err := svc.GetByID(c.Request.Context(), attemptID, actor); err != nil {
		h.handleServiceError(c, err)
		return false
	}
	return true
}

// handleServiceError maps service errors onto HTTP statuses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var validationError *services.ValidationError
	if errors.As(err, &validationError) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationError.Error(),
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Attempt not found",
		})
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Resource not found",
		})
	case errors.Is(err, services.ErrTenantMismatch):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Quiz belongs to another classroom",
		})
	case errors.Is(err, services.ErrAttemptCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Attempt is already completed",
		})
	case errors.Is(err, services.ErrMissingCompletionData):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "No completion data available for attempt",
		})
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Unauthorized access",
		})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden - insufficient permissions",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
