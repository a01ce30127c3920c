package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/fiscal-validator/internal/application/audit"
	"github.com/jhoicas/fiscal-validator/internal/application/dto"
	"github.com/jhoicas/fiscal-validator/internal/application/ingest"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
)

// AuditRunner ejecuta el pipeline sobre una nota. Lo implementa *audit.Pipeline.
type AuditRunner interface {
	Run(ctx context.Context, inv *entity.Invoice) *audit.Result
}

// ReportRenderer genera el PDF de un resultado.
type ReportRenderer interface {
	GenerateReportPDF(ctx context.Context, res *audit.Result) ([]byte, error)
}

// AuditHandler maneja la validación de notas.
type AuditHandler struct {
	runner AuditRunner
	pdf    ReportRenderer
	log    zerolog.Logger
}

// NewAuditHandler construye el handler. pdf puede ser nil (format=pdf responde 501).
func NewAuditHandler(runner AuditRunner, pdf ReportRenderer, log zerolog.Logger) *AuditHandler {
	return &AuditHandler{runner: runner, pdf: pdf, log: log}
}

// Create godoc
// @Summary      Validar nota fiscal
// @Description  Calcula los tributos legados y de la reforma, concilia con lo declarado y devuelve el reporte.
// @Tags         audits
// @Accept       json
// @Produce      json
// @Produce      application/pdf
// @Param        body    body   dto.AuditRequest  true   "header, items, declared"
// @Param        format  query  string            false  "json | pdf"
// @Success      200  {object}  dto.AuditResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.AuditResponse
// @Router       /api/audits [post]
func (h *AuditHandler) Create(c *fiber.Ctx) error {
	var in dto.AuditRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if len(in.Items) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "la nota debe tener al menos un ítem"})
	}
	format := c.Query("format", "json")
	if format != "json" && format != "pdf" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "format debe ser json o pdf"})
	}

	inv, stats := ingest.BuildInvoice(in)
	res := h.runner.Run(c.UserContext(), inv)
	h.log.Info().
		Str("run_id", res.RunID).
		Str("subject", GetSubject(c)).
		Str("status", string(res.Status)).
		Int("items", stats.Items).
		Msg("validación HTTP")

	if format == "pdf" {
		if h.pdf == nil {
			return c.Status(fiber.StatusNotImplemented).JSON(dto.ErrorResponse{Code: "PDF_DISABLED", Message: "generación de PDF no disponible"})
		}
		b, err := h.pdf.GenerateReportPDF(c.UserContext(), res)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
		}
		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+res.RunID+`.pdf"`)
		return c.Send(b)
	}

	status := fiber.StatusOK
	if res.Failed() {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(dto.AuditResponse{Result: res, Ingest: stats})
}
