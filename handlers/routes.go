package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the health check, the public scenario routes and the
// token-guarded write routes.
func RegisterRoutes(app *fiber.App, duplicateHandler *DuplicateHandler, adminHandler *AdminHandler, healthHandler *HealthHandler, adminToken string) {
	app.Get("/health", healthHandler.Health)

	requireAdmin := RequireAdminToken(adminToken)
	api := app.Group("/api/v1")

	// Scenario Routes
	scenarios := api.Group("/scenarios")
	scenarios.Post("/check-duplicates", duplicateHandler.CheckDuplicates)
	scenarios.Get("/suggestions", duplicateHandler.GetSuggestions)
	// Overwrites the stored content hash
	scenarios.Put("/:id/content-hash", requireAdmin, duplicateHandler.UpdateContentHash)

	// Admin Routes
	admin := api.Group("/admin", requireAdmin)
	admin.Post("/scenarios/:id/mark-duplicate", adminHandler.MarkDuplicate)
	admin.Post("/content-hashes/backfill", adminHandler.BackfillContentHashes)
	admin.Get("/metrics", adminHandler.GetMetrics)
}
