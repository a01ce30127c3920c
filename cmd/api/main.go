package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/swaggo/swag"

	_ "github.com/jhoicas/fiscal-validator/docs"
	"github.com/jhoicas/fiscal-validator/internal/application/audit"
	"github.com/jhoicas/fiscal-validator/internal/bootstrap"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/report"
	httpRouter "github.com/jhoicas/fiscal-validator/internal/interfaces/http"
	"github.com/jhoicas/fiscal-validator/pkg/config"
	"github.com/jhoicas/fiscal-validator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Bool("reform", cfg.Pipeline.UseReformTaxes).
		Msg("iniciando aplicación")

	ctx := context.Background()
	// Cada ejecución HTTP deja su reporte JSON en REPORTS_DIR.
	svc, err := bootstrap.New(ctx, cfg, log.Zerolog(),
		audit.WithWriters(report.NewJSONWriter(cfg.Reports.Dir)),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar servicios")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("cerrar servicios")
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 120,
		IdleTimeout:  time.Second * 60,
		BodyLimit:    64 * 1024 * 1024,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Validador Fiscal API",
	}))
	app.Get("/openapi.json", func(c *fiber.Ctx) error {
		doc, err := swag.ReadDoc()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(doc)
	})

	deps := httpRouter.RouterDeps{
		Audits:      svc.Pipeline,
		Reports:     svc.PDF,
		JWTSecret:   cfg.JWT.Secret,
		ServiceName: cfg.App.Name,
		Log:         log.Component("http"),
	}
	if svc.Reform != nil {
		deps.ReformRates = svc.Reform
	}
	httpRouter.Router(app, deps)

	if cfg.JWT.Secret == "" {
		log.Warn().Msg("JWT_SECRET vacío: API sin autenticación")
	}

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
