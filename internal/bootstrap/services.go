// Package bootstrap arma los servicios de la aplicación a partir de la configuración.
// Lo comparten el servidor HTTP y la CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/fiscal-validator/internal/application/audit"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/pdf"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/postgres"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/ratematrix"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/reform"
	"github.com/jhoicas/fiscal-validator/pkg/config"
)

// Services dependencias construidas. Close libera caché en disco y pool de PostgreSQL.
type Services struct {
	Config   *config.Config
	Log      zerolog.Logger
	Loader   *ratematrix.Loader
	Reform   *reform.Client // nil con USE_REFORM_TAXES=false
	Pipeline *audit.Pipeline
	PDF      *pdf.MarotoReportGenerator

	closers []func() error
}

// New construye los servicios. Las opciones extra (sinks, writers) se pasan al pipeline.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...audit.Option) (*Services, error) {
	s := &Services{Config: cfg, Log: log, PDF: pdf.NewMarotoReportGenerator()}

	var db ratematrix.Source
	if cfg.DB.Enabled() {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			// La base es una fuente más: si no responde se sigue con SQLite y CSV.
			log.Warn().Err(err).Msg("PostgreSQL no disponible como fuente de alícuotas")
		} else {
			s.closers = append(s.closers, func() error { pool.Close(); return nil })
			db = postgres.NewRateSource(pool)
		}
	}
	s.Loader = ratematrix.NewLoader(log.With().Str("component", "ratematrix").Logger(), RateSources(cfg.Matrix, db)...)
	log.Debug().Strs("sources", s.Loader.Sources()).Msg("fuentes de alícuotas")

	if cfg.Pipeline.UseReformTaxes {
		client, err := NewReformClient(cfg.Reform, log)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Reform = client
		s.closers = append(s.closers, client.Close)
	}

	var resolver fiscal.ReformRateResolver
	if s.Reform != nil {
		resolver = s.Reform
	}
	s.Pipeline = audit.NewPipeline(audit.Config{
		UseReformTaxes:    cfg.Pipeline.UseReformTaxes,
		WorkerCount:       cfg.Pipeline.WorkerCount,
		ChunkSize:         cfg.Pipeline.ChunkSize,
		ReformConcurrency: cfg.Reform.Concurrency,
		LineDetailLimit:   cfg.Pipeline.LineDetailLimit,
	}, s.Loader, resolver, append([]audit.Option{audit.WithLogger(log)}, opts...)...)

	return s, nil
}

// RateSources fuentes de la matriz en orden de prioridad: PostgreSQL (db, si no es nil),
// SQLite y el directorio de CSVs.
func RateSources(cfg config.MatrixConfig, db ratematrix.Source) []ratematrix.Source {
	var sources []ratematrix.Source
	if db != nil {
		sources = append(sources, db)
	}
	return append(sources, ratematrix.NewSQLiteSource(cfg.DBPath), ratematrix.NewCSVSource(cfg.Dir))
}

// NewReformClient cliente de alícuotas con la caché en disco y la tabla local configuradas.
func NewReformClient(cfg config.ReformConfig, log zerolog.Logger) (*reform.Client, error) {
	store, err := reform.OpenStore(cfg.CacheBackend, cfg.CachePath)
	if err != nil {
		if store == nil {
			return nil, fmt.Errorf("bootstrap: caché de alícuotas: %w", err)
		}
		log.Warn().Err(err).Str("path", cfg.CachePath).Msg("caché de alícuotas ilegible, se inicia vacía")
	}
	fallback, err := reform.LoadFallbackCSV(cfg.FallbackCSV)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bootstrap: tabla local de alícuotas: %w", err)
	}
	return reform.NewClient(reform.Config{
		BaseURL:     cfg.APIURL,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.MaxAttempts,
		MemorySize:  cfg.MemoryCache,
		RateLimit:   cfg.RateLimit,
		Jitter:      0.1,
	},
		reform.WithDiskStore(store),
		reform.WithFallback(fallback),
		reform.WithLogger(log.With().Str("component", "reform").Logger()),
	)
}

// Close libera los recursos en orden inverso.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
