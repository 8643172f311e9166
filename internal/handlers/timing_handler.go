package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlearn-io/quiz-attempt-service/internal/services"
	"github.com/openlearn-io/quiz-attempt-service/internal/utils"
)

// TimingHandler serves the duration heartbeat, close beacon, and gap
// reconciliation endpoints.
type TimingHandler struct {
	BaseHandler
	timingService  services.TimingService
	attemptService services.AttemptService
}

func NewTimingHandler(
	timingService services.TimingService,
	attemptService services.AttemptService,
	logger utils.Logger,
) *TimingHandler {
	return &TimingHandler{
		BaseHandler:    NewBaseHandler(logger),
		timingService:  timingService,
		attemptService: attemptService,
	}
}

// UpdateDurations merges a duration heartbeat
// @Summary Update attempt durations
// @Description Merges client-reported cumulative durations; stored values never decrease
// @Tags timing
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param metrics body services.DurationMetrics true "Cumulative durations"
// @Success 200 {object} services.DurationState
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/durations [post]
func (h *TimingHandler) UpdateDurations(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var metrics services.DurationMetrics
	if err := c.ShouldBindJSON(&metrics); err != nil {
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

	state, err := h.timingService.UpdateDurations(c.Request.Context(), id, metrics)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// RecordModalClosed handles the quiz-view close beacon
// @Summary Record modal closed
// @Description Records the final durations and marks the close time for gap tracking
// @Tags timing
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param metrics body services.DurationMetrics false "Final cumulative durations"
// @Success 200 {object} services.DurationState
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/modal-closed [post]
func (h *TimingHandler) RecordModalClosed(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	// Beacon payloads are best-effort; an empty body is still a valid close.
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

	h.LogRequest(c, "Recording modal close", "attempt_id", id)

	state, err := h.timingService.RecordModalClosed(c.Request.Context(), id, metrics)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// ReconcileGap charges the absence gap on reopen
// @Summary Reconcile absence gap
// @Description Charges wall-clock time since the close beacon (or last write) to the durations
// @Tags timing
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.GapResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/reconcile-gap [post]
func (h *TimingHandler) ReconcileGap(c *gin.Context) {
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

	h.LogRequest(c, "Reconciling absence gap", "attempt_id", id)

	result, err := h.timingService.ReconcileGap(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
