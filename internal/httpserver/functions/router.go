// Package functions exposes the two serverless-style endpoints: dashboard
// aggregation and API-key storage.
package functions

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/orchestr8/dashboard/internal/services/dashboard"
	"github.com/orchestr8/dashboard/internal/services/keyvault"
)

type Handler struct {
	dashboards *dashboard.Service
	keys       *keyvault.Service
	jwtSecret  []byte
	logger     *slog.Logger
}

func NewHandler(dashboards *dashboard.Service, keys *keyvault.Service, jwtSecret []byte, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dashboards: dashboards, keys: keys, jwtSecret: jwtSecret, logger: logger}
}

// Register mounts the function routes. The dashboard surface requires a
// bearer token; the key-storage surface identifies the owner from the body
// the way the deployed function does.
func (h *Handler) Register(app *fiber.App) {
	group := app.Group("/functions/v1")
	group.Post("/dashboard", requireOwner(h.jwtSecret), h.handleDashboard)
	group.Post("/keys", h.handleStoreKey)
}
