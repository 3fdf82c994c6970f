package functions

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/orchestr8/dashboard/internal/httpserver/httputil"
	"github.com/orchestr8/dashboard/internal/services/keyvault"
)

type storeKeyRequest struct {
	Name    string `json:"name"`
	Service string `json:"service"`
	APIKey  string `json:"api_key"`
	UserID  string `json:"user_id"`
}

// handleStoreKey accepts a raw provider key, persists only the redacted
// preview and secret reference, and never echoes the key back.
func (h *Handler) handleStoreKey(c *fiber.Ctx) error {
	var req storeKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}

	id, err := h.keys.StoreKey(c.Context(), keyvault.StoreKeyParams{
		Name:    req.Name,
		Service: req.Service,
		APIKey:  req.APIKey,
		UserID:  req.UserID,
	})
	if err != nil {
		if errors.Is(err, keyvault.ErrMissingField) {
			return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error("key storage failed", "error", err)
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to store key")
	}

	return c.JSON(fiber.Map{
		"message": "API key stored successfully",
		"id":      id.String(),
	})
}
