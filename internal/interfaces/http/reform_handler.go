package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/fiscal-validator/internal/application/dto"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/reform"
)

// ReformRates resolvedor con caché. Lo implementa *reform.Client.
type ReformRates interface {
	Resolve(ctx context.Context, productCode, operationCode string) entity.ReformRate
	Stats() reform.Stats
	Clear() error
}

// ReformHandler consulta y administración de las alícuotas de la reforma.
type ReformHandler struct {
	rates ReformRates
}

// NewReformHandler construye el handler.
func NewReformHandler(rates ReformRates) *ReformHandler {
	return &ReformHandler{rates: rates}
}

// GetRate godoc
// @Summary      Alícuotas CBS/IBS/IS de un par NCM/CFOP
// @Tags         reform
// @Produce      json
// @Param        ncm   path  string  true  "NCM (8 dígitos)"
// @Param        cfop  path  string  true  "CFOP (4 dígitos)"
// @Success      200  {object}  dto.ReformRateResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/reform-rates/{ncm}/{cfop} [get]
func (h *ReformHandler) GetRate(c *fiber.Ctx) error {
	ncm := fiscal.NormalizeNCM(c.Params("ncm"))
	cfop := fiscal.NormalizeCFOP(c.Params("cfop"))
	if !reform.ValidNCM(ncm) || !reform.ValidCFOP(cfop) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "NCM o CFOP inválido"})
	}
	r := h.rates.Resolve(c.UserContext(), ncm, cfop)
	return c.JSON(dto.ReformRateResponse{
		NCM: ncm, CFOP: cfop,
		CBS: r.CBS, IBS: r.IBS, IS: r.IS,
		Source: r.Source, Observation: r.Observation,
	})
}

// CacheStats godoc
// @Summary      Estadísticas de la caché de alícuotas
// @Tags         reform
// @Produce      json
// @Success      200  {object}  reform.Stats
// @Router       /api/reform-rates/cache [get]
func (h *ReformHandler) CacheStats(c *fiber.Ctx) error {
	return c.JSON(h.rates.Stats())
}

// ClearCache godoc
// @Summary      Vaciar la caché de alícuotas (memoria y disco)
// @Tags         reform
// @Success      204
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/reform-rates/cache [delete]
func (h *ReformHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.rates.Clear(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
