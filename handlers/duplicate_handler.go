package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/apocaliptyx/scenario-dedup/services"
)

type DuplicateHandler struct {
	Service *services.DuplicateService
}

func NewDuplicateHandler(service *services.DuplicateService) *DuplicateHandler {
	return &DuplicateHandler{Service: service}
}

type checkDuplicatesRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ExcludeID   string `json:"excludeId"`
}

type contentHashRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CheckDuplicates runs the duplicate check for a scenario about to be created or edited
func (h *DuplicateHandler) CheckDuplicates(c *fiber.Ctx) error {
	var req checkDuplicatesRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if strings.TrimSpace(req.Title) == "" {
		return errorResponse(c, fiber.StatusBadRequest, "title is required")
	}
	if req.ExcludeID != "" {
		if _, err := uuid.Parse(req.ExcludeID); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "excludeId must be a valid UUID")
		}
	}

	result := h.Service.CheckForDuplicates(c.UserContext(), req.Title, req.Description, req.ExcludeID)
	return successResponse(c, fiber.StatusOK, result)
}

// GetSuggestions returns live suggestions for a partially typed title
func (h *DuplicateHandler) GetSuggestions(c *fiber.Ctx) error {
	suggestions := h.Service.GetSuggestions(c.UserContext(), c.Query("title"))
	return successResponse(c, fiber.StatusOK, suggestions)
}

// UpdateContentHash stores the content hash of an existing scenario
func (h *DuplicateHandler) UpdateContentHash(c *fiber.Ctx) error {
	id, ok := scenarioIDParam(c, "id")
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid scenario id")
	}

	var req contentHashRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}

	contentHash, err := h.Service.UpdateContentHash(c.UserContext(), id, req.Title, req.Description)
	if err != nil {
		return serviceErrorResponse(c, err)
	}

	return successResponse(c, fiber.StatusOK, fiber.Map{
		"id":          id,
		"contentHash": contentHash,
	})
}
