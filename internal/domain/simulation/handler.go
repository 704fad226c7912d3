package simulation

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labcore/labcore/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	sim := api.Group("", auth.RequireRole("admin", "physician", "lab_tech"))
	sim.POST("/lab/orders/:id/simulate", h.Start)
	sim.GET("/lab/orders/:id/simulation", h.Status)
	sim.GET("/lab/simulations", h.List)
	sim.DELETE("/lab/orders/:id/simulation", h.Cancel)
}

func (h *Handler) Start(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid order id"})
	}
	sim, err := h.svc.Start(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"success": true, "data": sim})
}

func (h *Handler) Status(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid order id"})
	}
	sim, ok := h.svc.Status(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": "no running simulation for order"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": sim})
}

func (h *Handler) List(c echo.Context) error {
	sims := h.svc.ActiveSimulations()
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": sims, "total": len(sims)})
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid order id"})
	}
	if !h.svc.Cancel(id) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": "no running simulation for order"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
