package custody

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
	g := api.Group("", auth.RequireRole("admin", "nurse", "lab_tech"))
	g.GET("/lab/orders/:id/label", h.GenerateLabel)
	g.POST("/lab/orders/:id/collection", h.ValidateCollection)
	g.POST("/lab/orders/:id/specimen-status", h.UpdateSpecimenStatus)
	g.GET("/lab/orders/:id/stability", h.CheckStability)
}

func (h *Handler) GenerateLabel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid order id"})
	}
	label, err := h.svc.GenerateLabel(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": label})
}

func (h *Handler) ValidateCollection(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid order id"})
	}
	var data CollectionData
	if err := c.Bind(&data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid JSON body"})
	}
	check, err := h.svc.ValidateCollection(c.Request().Context(), id, data)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": err.Error()})
	}
	status := http.StatusOK
	if !check.IsValid {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, map[string]interface{}{"success": check.IsValid, "data": check})
}

func (h *Handler) UpdateSpecimenStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid order id"})
	}
	var req struct {
		Status  string        `json:"status"`
		Details StatusDetails `json:"details"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "status is required"})
	}
	if req.Details.PerformedBy == "" {
		req.Details.PerformedBy = auth.UserIDFromContext(c.Request().Context())
	}
	o, err := h.svc.UpdateSpecimenStatus(c.Request().Context(), id, req.Status, req.Details)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": o})
}

func (h *Handler) CheckStability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid order id"})
	}
	check, err := h.svc.CheckSpecimenStability(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": check})
}
