package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Audits      AuditRunner
	Reports     ReportRenderer
	ReformRates ReformRates // nil si la reforma está deshabilitada
	JWTSecret   string      // vacío: API sin autenticación
	ServiceName string
	Log         zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	authn, admin, reader := passThrough, passThrough, passThrough
	if deps.JWTSecret != "" {
		authn = AuthMiddleware(deps.JWTSecret)
		admin = RequireRole(RoleAdmin)
		reader = RequireRole(RoleAdmin, RoleAuditor)
	}
	protected := api.Group("/", authn)

	// Auditorías
	auditHandler := NewAuditHandler(deps.Audits, deps.Reports, deps.Log)
	protected.Post("/audits", reader, auditHandler.Create)

	// Alícuotas de la reforma
	if deps.ReformRates != nil {
		reformHandler := NewReformHandler(deps.ReformRates)
		rates := protected.Group("/reform-rates")
		rates.Get("/cache", reader, reformHandler.CacheStats)
		rates.Delete("/cache", admin, reformHandler.ClearCache)
		rates.Get("/:ncm/:cfop", reader, reformHandler.GetRate)
	}
}

func passThrough(c *fiber.Ctx) error { return c.Next() }
