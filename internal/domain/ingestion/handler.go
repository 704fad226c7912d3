package ingestion

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/orders"
	"github.com/labcore/labcore/internal/platform/auth"
	"github.com/labcore/labcore/internal/platform/hl7v2"
)

// Handler exposes the ingestion endpoints, one per source adapter.
type Handler struct {
	processor  *Processor
	hl7        *HL7Adapter
	fhir       *FHIRAdapter
	attachment *AttachmentAdapter
	api        *APIAdapter
	manual     *ManualAdapter
	orders     *orders.Service
	logger     zerolog.Logger
}

func NewHandler(processor *Processor, hl7 *HL7Adapter, fhir *FHIRAdapter, attachment *AttachmentAdapter, api *APIAdapter, manual *ManualAdapter, orderSvc *orders.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		processor:  processor,
		hl7:        hl7,
		fhir:       fhir,
		attachment: attachment,
		api:        api,
		manual:     manual,
		orders:     orderSvc,
		logger:     logger.With().Str("component", "ingestion").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	ingest := api.Group("", auth.RequireRole("admin", "lab_tech", "integration"))
	ingest.POST("/lab/ingest/hl7", h.IngestHL7)
	ingest.POST("/lab/ingest/fhir", h.IngestFHIR)
	ingest.POST("/lab/ingest/api", h.IngestAPI)

	entry := api.Group("", auth.RequireRole("admin", "physician", "nurse", "lab_tech"))
	entry.POST("/lab/ingest/attachment", h.IngestAttachment)
	entry.POST("/lab/ingest/manual", h.IngestManual)
}

// IngestHL7 accepts a raw ORU^R01 message and replies with the HL7 ACK
// plus the batch outcome. Validation failures produce an AE ACK, not a
// bare HTTP error, so conformant HL7 senders can process the response.
func (h *Handler) IngestHL7(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "unreadable body"})
	}
	msg, err := hl7v2.Parse(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
	}
	if err := msg.ValidateORU(); err != nil {
		return h.hl7Ack(c, msg, hl7v2.AckError, err.Error(), nil)
	}

	mrn := msg.PatientID()
	patient, err := h.orders.GetPatientByMRN(c.Request().Context(), mrn)
	if err != nil {
		return h.hl7Ack(c, msg, hl7v2.AckError, "unknown patient "+mrn, nil)
	}

	var orderID *uuid.UUID
	if placer := msg.PlacerOrderNumber(); placer != "" {
		if o, err := h.orders.GetByExternalOrderID(c.Request().Context(), placer); err == nil {
			orderID = &o.ID
		} else if id, perr := uuid.Parse(placer); perr == nil {
			if o, err := h.orders.Get(c.Request().Context(), id); err == nil {
				orderID = &o.ID
			}
		}
	}

	cands := h.hl7.Translate(msg, patient.ID, orderID)
	if len(cands) == 0 {
		return h.hl7Ack(c, msg, hl7v2.AckError, "no usable OBX segments", nil)
	}
	outcome := h.processor.ProcessAndSave(c.Request().Context(), cands, DefaultOptions)
	h.completeOrder(c, orderID, outcome.Saved)
	return h.hl7Ack(c, msg, hl7v2.AckAccept, "", &outcome)
}

func (h *Handler) hl7Ack(c echo.Context, msg *hl7v2.Message, code, text string, outcome interface{}) error {
	status := http.StatusOK
	if code == hl7v2.AckError {
		status = http.StatusUnprocessableEntity
	}
	body := map[string]interface{}{
		"success": code == hl7v2.AckAccept,
		"ack":     string(hl7v2.BuildACK(msg, code, text)),
	}
	if text != "" {
		body["error"] = text
	}
	if outcome != nil {
		body["outcome"] = outcome
	}
	return c.JSON(status, body)
}

// completeOrder advances a matched order to completed after final results
// land. A transition failure is logged, never surfaced to the sender.
func (h *Handler) completeOrder(c echo.Context, orderID *uuid.UUID, saved int) {
	if orderID == nil || saved == 0 {
		return
	}
	if _, err := h.orders.UpdateStatus(c.Request().Context(), *orderID, orders.StatusCompleted); err != nil {
		h.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("could not complete order after result ingest")
	}
}

func (h *Handler) IngestFHIR(c echo.Context) error {
	var report map[string]interface{}
	if err := c.Bind(&report); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid JSON body"})
	}
	cands, patientID, err := h.fhir.Translate(report, nil)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"success": false, "error": err.Error()})
	}
	if _, err := h.orders.GetPatient(c.Request().Context(), patientID); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"success": false, "error": "unknown patient " + patientID.String()})
	}
	outcome := h.processor.ProcessAndSave(c.Request().Context(), cands, DefaultOptions)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "outcome": outcome})
}

func (h *Handler) IngestAttachment(c echo.Context) error {
	var req struct {
		PatientID uuid.UUID `json:"patient_id"`
		Text      string    `json:"text"`
	}
	if err := c.Bind(&req); err != nil || req.PatientID == uuid.Nil || req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "patient_id and text are required"})
	}
	cands, err := h.attachment.Translate(c.Request().Context(), req.PatientID, req.Text)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]interface{}{"success": false, "error": "extraction failed"})
	}
	outcome := h.processor.ProcessAndSave(c.Request().Context(), cands, DefaultOptions)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "outcome": outcome})
}

func (h *Handler) IngestAPI(c echo.Context) error {
	var batch PartnerBatch
	if err := c.Bind(&batch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid JSON body"})
	}
	if batch.PatientID == uuid.Nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "patient_id is required"})
	}
	var orderID *uuid.UUID
	if batch.ExternalOrderID != "" {
		if o, err := h.orders.GetByExternalOrderID(c.Request().Context(), batch.ExternalOrderID); err == nil {
			orderID = &o.ID
		}
	}
	cands := h.api.Translate(&batch, orderID)
	outcome := h.processor.ProcessAndSave(c.Request().Context(), cands, DefaultOptions)
	h.completeOrder(c, orderID, outcome.Saved)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "outcome": outcome})
}

func (h *Handler) IngestManual(c echo.Context) error {
	var entry ManualEntry
	if err := c.Bind(&entry); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid JSON body"})
	}
	if entry.PatientID == uuid.Nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "patient_id is required"})
	}
	cand, err := h.manual.Translate(&entry)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
	}
	outcome := h.processor.ProcessAndSave(c.Request().Context(), []CandidateResult{cand}, DefaultOptions)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "outcome": outcome})
}
