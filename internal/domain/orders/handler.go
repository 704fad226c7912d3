package orders

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
	read.GET("/lab/orders", h.List)
	read.GET("/lab/orders/:id", h.Get)
	read.GET("/lab/orders/:id/custody", h.GetCustody)

	write := api.Group("", auth.RequireRole("admin", "physician"))
	write.POST("/lab/orders", h.Create)
	write.POST("/lab/orders/:id/sign", h.Sign)

	status := api.Group("", auth.RequireRole("admin", "physician", "lab_tech"))
	status.POST("/lab/orders/:id/status", h.UpdateStatus)
}

type createOrderRequest struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	EncounterID     *uuid.UUID `json:"encounter_id"`
	TestCode        string     `json:"test_code"`
	TestName        string     `json:"test_name"`
	LOINCCode       *string    `json:"loinc_code"`
	Priority        string     `json:"priority"`
	SpecimenType    *string    `json:"specimen_type"`
	ContainerType   *string    `json:"container_type"`
	VolumeML        *float64   `json:"volume_ml"`
	FastingRequired bool       `json:"fasting_required"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope("invalid request body"))
	}

	o := &LabOrder{
		PatientID:       req.PatientID,
		EncounterID:     req.EncounterID,
		TestCode:        req.TestCode,
		TestName:        req.TestName,
		LOINCCode:       req.LOINCCode,
		Priority:        req.Priority,
		SpecimenType:    req.SpecimenType,
		ContainerType:   req.ContainerType,
		VolumeML:        req.VolumeML,
		FastingRequired: req.FastingRequired,
	}
	if err := h.svc.Create(c.Request().Context(), o); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errEnvelope(err.Error()))
	}
	return c.JSON(http.StatusCreated, okEnvelope(o))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope("invalid order id"))
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, errEnvelope("order not found"))
	}
	return c.JSON(http.StatusOK, okEnvelope(o))
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope("patient query parameter is required"))
	}
	page := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, page.Limit, page.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errEnvelope("failed to list orders"))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page))
}

func (h *Handler) Sign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope("invalid order id"))
	}
	o, err := h.svc.Sign(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusConflict, errEnvelope(err.Error()))
	}
	return c.JSON(http.StatusOK, okEnvelope(o))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope("invalid order id"))
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, errEnvelope("status is required"))
	}
	o, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return c.JSON(http.StatusConflict, errEnvelope(err.Error()))
	}
	return c.JSON(http.StatusOK, okEnvelope(o))
}

func (h *Handler) GetCustody(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope("invalid order id"))
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, errEnvelope("order not found"))
	}
	return c.JSON(http.StatusOK, okEnvelope(o.Metadata.ChainOfCustody))
}

func okEnvelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{"success": true, "data": data}
}

func errEnvelope(msg string) map[string]interface{} {
	return map[string]interface{}{"success": false, "error": msg}
}
