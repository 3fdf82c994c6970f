package functions

import (
	"github.com/gofiber/fiber/v2"

	"github.com/orchestr8/dashboard/internal/httpserver/httputil"
)

const (
	opGetDashboardMetrics = "getDashboardMetrics"
	opGetRecentActivity   = "getRecentActivity"
	opGetOverview         = "getOverview"
)

type operationRequest struct {
	Operation string `json:"operation"`
	Limit     int    `json:"limit,omitempty"`
}

// handleDashboard dispatches the aggregation operations. Every path returns
// a renderable body; the aggregation layer absorbs store failures itself.
func (h *Handler) handleDashboard(c *fiber.Ctx) error {
	owner, ok := ownerFromCtx(c)
	if !ok {
		return httputil.WriteError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var req operationRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}

	switch req.Operation {
	case opGetDashboardMetrics:
		return c.JSON(h.dashboards.GetMetrics(c.Context(), owner))
	case opGetOverview:
		return c.JSON(h.dashboards.Overview(c.Context(), owner))
	case opGetRecentActivity:
		entries, err := h.dashboards.RecentActivity(c.Context(), owner, req.Limit)
		if err != nil {
			h.logger.Error("recent activity fetch failed", "owner", owner, "error", err)
			return httputil.WriteError(c, fiber.StatusInternalServerError, "recent activity unavailable")
		}
		return c.JSON(fiber.Map{"activity": entries})
	case "":
		return httputil.WriteError(c, fiber.StatusBadRequest, "operation is required")
	default:
		return httputil.WriteError(c, fiber.StatusBadRequest, "unknown operation")
	}
}
