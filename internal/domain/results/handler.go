package results

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labcore/labcore/internal/platform/auth"
	"github.com/labcore/labcore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse", "lab_tech"))
	read.GET("/lab/results", h.List)
	read.GET("/lab/results/:id", h.Get)

	review := api.Group("", auth.RequireRole("admin", "physician"))
	review.POST("/lab/results/:id/review", h.Review)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid result id"})
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": "result not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": r})
}

func (h *Handler) List(c echo.Context) error {
	if orderParam := c.QueryParam("order"); orderParam != "" {
		orderID, err := uuid.Parse(orderParam)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid order id"})
		}
		items, err := h.svc.ListByOrder(c.Request().Context(), orderID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "failed to list results"})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": items, "total": len(items)})
	}

	patientID, err := uuid.Parse(c.QueryParam("patient"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "patient or order query parameter is required"})
	}
	page := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, page.Limit, page.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "failed to list results"})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page))
}

func (h *Handler) Review(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid result id"})
	}
	var req struct {
		ReviewStatus string `json:"review_status"`
	}
	if err := c.Bind(&req); err != nil || req.ReviewStatus == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "review_status is required"})
	}
	if err := h.svc.Review(c.Request().Context(), id, req.ReviewStatus); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
