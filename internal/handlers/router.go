package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openlearn-io/quiz-attempt-service/internal/config"
	"github.com/openlearn-io/quiz-attempt-service/internal/models"
	"github.com/openlearn-io/quiz-attempt-service/internal/services"
	"github.com/openlearn-io/quiz-attempt-service/internal/utils"
	"github.com/openlearn-io/quiz-attempt-service/internal/validator"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
	timingHandler  *TimingHandler
	gradingHandler *GradingHandler
	authMiddleware *CasdoorAuthMiddleware
	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), serviceManager.Result(), validator, logger),
		timingHandler:  NewTimingHandler(serviceManager.Timing(), serviceManager.Attempt(), logger),
		gradingHandler: NewGradingHandler(serviceManager.Grading(), serviceManager.Attempt(), logger),
		authMiddleware: NewCasdoorAuthMiddleware(casdoorConfig),
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		attempts := v1.Group("/attempts")
		{
			attempts.POST("", hm.attemptHandler.CreateAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)

			// Timing: heartbeat, close beacon, gap reconciliation
			attempts.POST("/:id/durations", hm.timingHandler.UpdateDurations)
			attempts.POST("/:id/modal-closed", hm.timingHandler.RecordModalClosed)
			attempts.POST("/:id/reconcile-gap", hm.timingHandler.ReconcileGap)

			// Progressive results ledger
			attempts.POST("/:id/results", hm.attemptHandler.SubmitQuestionResult)
			attempts.GET("/:id/results", hm.attemptHandler.GetQuestionResults)

			attempts.POST("/:id/complete", hm.gradingHandler.CompleteAttempt)
		}

		quizzes := v1.Group("/quizzes")
		{
			quizzes.GET("/:quiz_id/attempts", hm.attemptHandler.ListAttempts)
			quizzes.GET("/:quiz_id/score", hm.gradingHandler.GetQuizScore)
			quizzes.GET("/:quiz_id/score/export",
				hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor),
				hm.gradingHandler.ExportQuizScores)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "quiz-attempt-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "quiz-attempt-service",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}
