package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jhoicas/fiscal-validator/internal/application/audit"
	"github.com/jhoicas/fiscal-validator/internal/application/ingest"
	"github.com/jhoicas/fiscal-validator/internal/bootstrap"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/pdf"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/progress"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/report"
	"github.com/jhoicas/fiscal-validator/pkg/config"
	"github.com/jhoicas/fiscal-validator/pkg/jwt"
	"github.com/jhoicas/fiscal-validator/pkg/logger"
)

// errRunFailed la validación terminó en FAILED; el detalle ya se imprimió.
var errRunFailed = errors.New("validación fallida")

// cli estado compartido por los subcomandos.
type cli struct {
	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "audit",
		Short:         "Validador de tributos de notas fiscales",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Out: cmd.ErrOrStderr()}).Zerolog()
			return nil
		},
	}
	root.AddCommand(c.runCmd(), c.cacheCmd(), c.tokenCmd())
	return root
}

// ── run ──

func (c *cli) runCmd() *cobra.Command {
	var (
		format       string
		outDir       string
		progressPath string
		noReform     bool
	)
	cmd := &cobra.Command{
		Use:   "run [nota.json]",
		Short: "Valida una nota (header, items, declared) y escribe el reporte",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("leer nota: %w", err)
			}
			var p ingest.Payload
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("nota inválida: %w", err)
			}

			if outDir == "" {
				outDir = c.cfg.Reports.Dir
			}
			if progressPath == "" {
				progressPath = c.cfg.Reports.ProgressPath
			}
			if noReform {
				c.cfg.Pipeline.UseReformTaxes = false
			}

			sink, err := progress.OpenJSONLFile(progressPath)
			if err != nil {
				return err
			}
			defer sink.Close()

			jsonWriter := report.NewJSONWriter(outDir)
			pdfWriter := pdf.NewFileWriter(outDir)
			var writers []audit.ResultWriter
			switch format {
			case "json":
				writers = append(writers, jsonWriter)
			case "pdf":
				writers = append(writers, pdfWriter)
			case "both":
				writers = append(writers, jsonWriter, pdfWriter)
			default:
				return fmt.Errorf("formato desconocido %q (json, pdf, both)", format)
			}

			svc, err := bootstrap.New(cmd.Context(), c.cfg, c.log,
				audit.WithSinks(sink, audit.NewLogSink(c.log)),
				audit.WithWriters(writers...),
			)
			if err != nil {
				return err
			}
			defer svc.Close()

			inv, stats := ingest.BuildInvoice(p)
			res := svc.Pipeline.Run(cmd.Context(), inv)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Execução %s: %s\n", res.RunID, res.Status)
			fmt.Fprintf(out, "Itens: %d (%d com valor inválido)\n", stats.Items, stats.Malformed)
			if res.Failed() {
				fmt.Fprintf(out, "Etapa: %s\nErro: %s\n", res.Failure.Stage, res.Failure.Error)
				return errRunFailed
			}
			fmt.Fprintln(out, res.Report.Text)
			for _, a := range res.Report.Alerts {
				fmt.Fprintf(out, "  [%s] %s\n", a.Level, a.Message)
			}
			if format != "pdf" {
				fmt.Fprintf(out, "Relatório: %s\n", jsonWriter.Path(res.RunID))
			}
			if format != "json" {
				fmt.Fprintf(out, "PDF: %s\n", pdfWriter.Path(res.RunID))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json | pdf | both")
	cmd.Flags().StringVar(&outDir, "out", "", "directorio de reportes (default REPORTS_DIR)")
	cmd.Flags().StringVar(&progressPath, "progress", "", "archivo JSONL de progreso (default PROGRESS_PATH)")
	cmd.Flags().BoolVar(&noReform, "no-reform", false, "omite CBS/IBS/IS")
	return cmd
}

// ── cache ──

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Administra la caché de alícuotas de la reforma",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Muestra entradas y contadores de la caché",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, err := bootstrap.NewReformClient(c.cfg.Reform, c.log)
				if err != nil {
					return err
				}
				defer client.Close()
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(client.Stats())
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Vacía la caché en memoria y en disco",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, err := bootstrap.NewReformClient(c.cfg.Reform, c.log)
				if err != nil {
					return err
				}
				defer client.Close()
				if err := client.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache limpo.")
				return nil
			},
		},
	)
	return cmd
}

// ── token ──

func (c *cli) tokenCmd() *cobra.Command {
	var subject, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Emite un JWT para la API (requiere JWT_SECRET)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if role != "admin" && role != "auditor" {
				return fmt.Errorf("rol desconocido %q (admin, auditor)", role)
			}
			tok, err := jwt.Generate(c.cfg.JWT.Secret, subject, role, c.cfg.JWT.Issuer, c.cfg.JWT.Expiration)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "sujeto del token")
	cmd.Flags().StringVar(&role, "role", "auditor", "admin | auditor")
	return cmd
}
