package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/jobs"
	"github.com/apocaliptyx/scenario-dedup/services"
	"github.com/apocaliptyx/scenario-dedup/shared"
)

// DatabaseMetricsProvider is implemented by stores that track query metrics
type DatabaseMetricsProvider interface {
	GetDatabaseMetrics() *shared.DatabaseMetrics
}

type AdminHandler struct {
	Service     *services.DuplicateService
	BackfillJob *jobs.HashBackfillJob
	DBMetrics   DatabaseMetricsProvider
}

func NewAdminHandler(service *services.DuplicateService, backfillJob *jobs.HashBackfillJob, dbMetrics DatabaseMetricsProvider) *AdminHandler {
	return &AdminHandler{
		Service:     service,
		BackfillJob: backfillJob,
		DBMetrics:   dbMetrics,
	}
}

type markDuplicateRequest struct {
	OriginalID string `json:"originalId"`
}

// MarkDuplicate cancels a scenario as a duplicate of another
func (h *AdminHandler) MarkDuplicate(c *fiber.Ctx) error {
	id, ok := scenarioIDParam(c, "id")
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid scenario id")
	}

	var req markDuplicateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if _, err := uuid.Parse(req.OriginalID); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "originalId must be a valid UUID")
	}

	if err := h.Service.MarkAsDuplicate(c.UserContext(), id, req.OriginalID); err != nil {
		return serviceErrorResponse(c, err)
	}

	logrus.WithFields(logrus.Fields{
		"component":   "AdminHandler",
		"scenario_id": id,
		"original_id": req.OriginalID,
	}).Info("Scenario marked as duplicate via admin endpoint")

	return successResponse(c, fiber.StatusOK, fiber.Map{
		"id":          id,
		"duplicateOf": req.OriginalID,
	})
}

// BackfillContentHashes manually triggers the hash backfill job
func (h *AdminHandler) BackfillContentHashes(c *fiber.Ctx) error {
	logrus.WithField("component", "AdminHandler").Info("Manual hash backfill triggered via admin endpoint")

	startTime := time.Now()
	updated, err := h.BackfillJob.Run(c.UserContext())
	if err != nil {
		return serviceErrorResponse(c, err)
	}

	return successResponse(c, fiber.StatusOK, fiber.Map{
		"updated":  updated,
		"duration": time.Since(startTime).String(),
	})
}

// GetMetrics returns the detector and database metrics
func (h *AdminHandler) GetMetrics(c *fiber.Ctx) error {
	serviceMetrics := h.Service.GetServiceMetrics()

	data := fiber.Map{
		"service":      serviceMetrics.GetSnapshot(),
		"success_rate": serviceMetrics.GetSuccessRate(),
	}
	if h.DBMetrics != nil {
		dbMetrics := h.DBMetrics.GetDatabaseMetrics()
		data["database"] = dbMetrics.GetSnapshot()
		data["query_success_rate"] = dbMetrics.GetQuerySuccessRate()
	}

	return successResponse(c, fiber.StatusOK, data)
}

// HealthHandler reports liveness and, when a database is configured, its reachability
type HealthHandler struct {
	Ping func(ctx context.Context) error
}

func NewHealthHandler(ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{Ping: ping}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	database := "memory"
	if h.Ping != nil {
		if err := h.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "degraded",
				"database":  "unreachable",
				"error":     err.Error(),
				"timestamp": time.Now().Unix(),
			})
		}
		database = "ok"
	}

	return c.JSON(fiber.Map{
		"status":    "ok",
		"database":  database,
		"timestamp": time.Now().Unix(),
	})
}
