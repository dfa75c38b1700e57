package handlers

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

func successResponse(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// serviceErrorResponse maps a service error to its HTTP status
func serviceErrorResponse(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		var serviceErr *shared.ServiceError
		if errors.As(err, &serviceErr) {
			serviceErr.LogError()
		} else {
			logrus.WithFields(logrus.Fields{
				"component": "handlers",
				"path":      c.Path(),
				"error":     err,
			}).Error("Request failed")
		}
	}
	return errorResponse(c, status, err.Error())
}

func errorStatus(err error) int {
	if shared.IsNotFound(err) {
		return fiber.StatusNotFound
	}

	switch shared.CategoryOf(err) {
	case shared.ErrorCategoryValidation:
		return fiber.StatusBadRequest
	case shared.ErrorCategoryAuthorization:
		return fiber.StatusUnauthorized
	case shared.ErrorCategoryResource:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// scenarioIDParam reads a path parameter that must be a UUID. The value is
// copied out of the request buffer, which fasthttp reuses.
func scenarioIDParam(c *fiber.Ctx, name string) (string, bool) {
	id := utils.CopyString(c.Params(name))
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// RequireAdminToken guards admin routes with a bearer token.
// An empty token leaves the routes open.
func RequireAdminToken(token string) fiber.Handler {
	if token == "" {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
				return false, keyauth.ErrMissingOrMalformedAPIKey
			}
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return errorResponse(c, fiber.StatusUnauthorized, "Unauthorized")
		},
	})
}
