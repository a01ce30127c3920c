// Package audit orquesta la validación fiscal de una nota: carga de alícuotas, cálculo de los
// tributos legados, resolución de la reforma, conciliación y consolidación.
package audit

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/fiscal-validator/internal/domain"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/metrics"
)

// Config parámetros de ejecución.
type Config struct {
	UseReformTaxes    bool
	WorkerCount       int
	ChunkSize         int
	ReformConcurrency int
	LineDetailLimit   int
}

// ReformSummary resumen de la etapa de la reforma.
type ReformSummary struct {
	Enabled   bool                         `json:"enabled"`
	Keys      int                          `json:"keys"`
	Fallbacks int                          `json:"fallbacks"`
	Rates     map[string]entity.ReformRate `json:"rates,omitempty"`
}

// Result artefacto de una ejecución: reporte completo o registro de falla.
type Result struct {
	RunID       string                   `json:"run_id"`
	Status      entity.Stage             `json:"status"` // DONE o FAILED
	Invoice     InvoiceRef               `json:"invoice"`
	Lines       []entity.ComputedTaxLine `json:"-"`
	Totals      *entity.AggregateTotals  `json:"-"`
	LegacyStats fiscal.ComputeStats      `json:"legacy_stats"`
	Reform      ReformSummary            `json:"reform"`
	Divergences []entity.Divergence      `json:"divergences"`
	StageTrace  []entity.ProgressEvent   `json:"stage_trace"`
	Report      *Report                  `json:"report,omitempty"`
	Failure     *entity.Diagnostic       `json:"failure,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at"`
}

// Failed indica si la ejecución terminó en FAILED.
func (r *Result) Failed() bool { return r.Status == entity.StageFailed }

// InvoiceRef identificación de la nota en el resultado.
type InvoiceRef struct {
	ID             string `json:"id,omitempty"`
	Number         string `json:"number,omitempty"`
	IssuerTaxID    string `json:"issuer_tax_id,omitempty"`
	IssuerState    string `json:"issuer_state,omitempty"`
	RecipientState string `json:"recipient_state,omitempty"`
	Items          int    `json:"items"`
}

// Pipeline orquestador. Es reutilizable y seguro para ejecuciones concurrentes; cada Run
// tiene su propio estado.
type Pipeline struct {
	cfg      Config
	loader   RateMatrixLoader
	resolver fiscal.ReformRateResolver
	calc     *fiscal.Calculator
	sinks    []ProgressSink
	writers  []ResultWriter
	log      zerolog.Logger
	now      func() time.Time
}

// Option configura el pipeline.
type Option func(*Pipeline)

// WithSinks agrega destinos de progreso.
func WithSinks(s ...ProgressSink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, s...) }
}

// WithWriters agrega escritores del resultado.
func WithWriters(w ...ResultWriter) Option {
	return func(p *Pipeline) { p.writers = append(p.writers, w...) }
}

// WithLogger define el logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline crea el orquestador. resolver puede ser nil: la etapa de la reforma queda deshabilitada.
func NewPipeline(cfg Config, loader RateMatrixLoader, resolver fiscal.ReformRateResolver, opts ...Option) *Pipeline {
	if cfg.LineDetailLimit <= 0 {
		cfg.LineDetailLimit = DefaultLineDetailLimit
	}
	if cfg.ReformConcurrency <= 0 {
		cfg.ReformConcurrency = 4
	}
	p := &Pipeline{
		cfg:      cfg,
		loader:   loader,
		resolver: resolver,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.calc = fiscal.NewCalculator(fiscal.CalculatorConfig{WorkerCount: cfg.WorkerCount, ChunkSize: cfg.ChunkSize}, p.log)
	return p
}

// run estado de una ejecución.
type run struct {
	p   *Pipeline
	ctx context.Context
	inv *entity.Invoice
	res *Result
	log zerolog.Logger

	mu sync.Mutex

	matrix *fiscal.RateMatrix
	legacy *entity.AggregateTotals
	reform *entity.AggregateTotals
	totals *entity.AggregateTotals
}

// Run ejecuta el pipeline sobre la nota. Siempre devuelve un resultado: DONE con el reporte o
// FAILED con el diagnóstico. La cancelación se verifica entre etapas.
func (p *Pipeline) Run(ctx context.Context, inv *entity.Invoice) *Result {
	runID := uuid.NewString()
	r := &run{
		p:   p,
		ctx: ctx,
		inv: inv,
		log: p.log.With().Str("run_id", runID).Logger(),
		res: &Result{
			RunID:     runID,
			StartedAt: p.now(),
			Invoice: InvoiceRef{
				ID: inv.ID, Number: inv.Number, IssuerTaxID: inv.IssuerTaxID,
				IssuerState: inv.IssuerState, RecipientState: inv.RecipientState, Items: len(inv.Items),
			},
			Divergences: []entity.Divergence{},
		},
	}
	for _, issue := range fiscal.InvoiceIssues(inv) {
		r.res.Warnings = append(r.res.Warnings, issue)
	}

	steps := []struct {
		stage entity.Stage
		fn    func() (string, error)
	}{
		{entity.StageLoadingRates, r.loadRates},
		{entity.StageComputingLegacy, r.computeLegacy},
		{entity.StageResolvingReform, r.resolveReform},
		{entity.StageReconciling, r.reconcile},
		{entity.StageConsolidating, r.consolidate},
	}
	failed := false
	for _, s := range steps {
		if err := r.stage(s.stage, s.fn); err != nil {
			failed = true
			break
		}
	}
	if !failed {
		r.res.Status = entity.StageDone
		r.emit(entity.StageDone, entity.StatusOK, 100, "")
	}
	r.res.FinishedAt = p.now()
	metrics.Runs.WithLabelValues(string(r.res.Status)).Inc()

	r.log.Info().
		Str("status", string(r.res.Status)).
		Int("divergences", len(r.res.Divergences)).
		Dur("elapsed", r.res.FinishedAt.Sub(r.res.StartedAt)).
		Msg("validación finalizada")

	for _, w := range p.writers {
		if err := w.Write(ctx, r.res); err != nil {
			r.log.Error().Err(err).Msg("no se pudo escribir el resultado")
			r.res.Warnings = append(r.res.Warnings, fmt.Sprintf("escritura del resultado: %v", err))
		}
	}
	return r.res
}

// stage ejecuta una etapa: start → fn → ok | error. Un pánico se convierte en StageFailure.
func (r *run) stage(st entity.Stage, fn func() (string, error)) error {
	if err := r.ctx.Err(); err != nil {
		err = fmt.Errorf("%w: antes de %s: %v", domain.ErrCanceled, st, err)
		r.fail(st, err, "")
		return err
	}

	if st == entity.StageResolvingReform && !r.reformEnabled() {
		r.reform = fiscal.ZeroReformTotals()
		r.emit(st, entity.StatusOK, 100, "desabilitado")
		return nil
	}

	r.emit(st, entity.StatusStart, 0, "")
	start := time.Now()

	var stack string
	msg, err := func() (msg string, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				stack = string(debug.Stack())
				err = fmt.Errorf("%w: pánico: %v", domain.ErrStageFailure, rec)
			}
		}()
		return fn()
	}()

	status := entity.StatusOK
	if err != nil {
		status = entity.StatusError
	}
	metrics.StageDuration.WithLabelValues(string(st), string(status)).Observe(time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, domain.ErrStageFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrStageFailure, err)
		}
		r.fail(st, err, stack)
		return err
	}
	r.emit(st, entity.StatusOK, 100, msg)
	return nil
}

func (r *run) fail(st entity.Stage, err error, stack string) {
	r.emit(st, entity.StatusError, 0, err.Error())
	r.res.Status = entity.StageFailed
	r.res.Failure = &entity.Diagnostic{Stage: st, Error: err.Error(), Stack: stack, Timestamp: r.p.now()}
	r.emit(entity.StageFailed, entity.StatusError, 0, err.Error())
	r.log.Error().Err(err).Str("stage", string(st)).Msg("etapa del pipeline fallida")
}

// emit registra el evento en el trace y lo envía a los sinks. Seguro para uso concurrente.
func (r *run) emit(st entity.Stage, status entity.StageStatus, pct int, msg string) {
	ev := entity.ProgressEvent{Stage: st, Status: status, Percent: pct, Message: msg, Timestamp: r.p.now()}
	r.mu.Lock()
	r.res.StageTrace = append(r.res.StageTrace, ev)
	r.mu.Unlock()
	for _, s := range r.p.sinks {
		s.Emit(ev)
	}
}

func (r *run) reformEnabled() bool {
	return r.p.cfg.UseReformTaxes && r.p.resolver != nil
}

// ── Etapas ──

func (r *run) loadRates() (string, error) {
	m, err := r.p.loader.Load(r.ctx)
	switch {
	case errors.Is(err, domain.ErrDataUnavailable):
		r.res.Warnings = append(r.res.Warnings, "nenhuma fonte de alíquotas disponível: valores padrão aplicados")
		r.matrix = fiscal.EmptyRateMatrix()
		return "sem fontes: valores padrão", nil
	case err != nil:
		return "", err
	}
	if m == nil {
		m = fiscal.EmptyRateMatrix()
	}
	r.matrix = m
	return fmt.Sprintf("%d tabelas", loadedTables(m)), nil
}

func (r *run) computeLegacy() (string, error) {
	lines, totals, stats, err := r.p.calc.ComputeLegacyTaxes(r.inv, r.matrix, func(done, total int) {
		if done < total {
			r.emit(entity.StageComputingLegacy, entity.StatusRunning, percent(done, total), fmt.Sprintf("%d/%d itens", done, total))
		}
	})
	if err != nil {
		return "", err
	}
	r.res.Lines = lines
	r.res.LegacyStats = stats
	r.legacy = totals
	metrics.ItemsProcessed.Add(float64(stats.Processed))
	if stats.Malformed > 0 {
		// MalformedItem se absorbe: el ítem ya fue calculado con valor cero.
		err := fmt.Errorf("%w: %d item(ns) tratados como zero", domain.ErrMalformedItem, stats.Malformed)
		r.log.Warn().Err(err).Msg("ítems con valores inválidos")
		r.res.Warnings = append(r.res.Warnings, err.Error())
	}
	return fmt.Sprintf("%d itens processados, %d ignorados", stats.Processed, stats.Skipped), nil
}

func (r *run) resolveReform() (string, error) {
	out, err := fiscal.ComputeReformTaxes(r.ctx, r.inv.Items, r.p.resolver, r.p.cfg.ReformConcurrency, func(done, total int) {
		if done < total {
			r.emit(entity.StageResolvingReform, entity.StatusRunning, percent(done, total), fmt.Sprintf("%d/%d chaves", done, total))
		}
	})
	if err != nil {
		return "", err
	}
	r.res.Lines = append(r.res.Lines, out.Lines...)
	r.reform = out.Totals
	r.res.Reform = ReformSummary{Enabled: true, Keys: len(out.Rates), Fallbacks: out.Fallbacks, Rates: out.Rates}
	return fmt.Sprintf("%d chaves, %d fallback", len(out.Rates), out.Fallbacks), nil
}

func (r *run) reconcile() (string, error) {
	totals := entity.NewAggregateTotals()
	totals.Merge(r.legacy)
	totals.Merge(r.reform)
	r.totals = totals
	r.res.Totals = totals

	divs := fiscal.Reconcile(totals, r.inv.Declared)
	if divs == nil {
		divs = []entity.Divergence{}
	}
	for _, d := range divs {
		metrics.DivergencesFound.WithLabelValues(string(d.TaxType)).Inc()
	}
	r.res.Divergences = divs
	return fmt.Sprintf("%d divergência(s)", len(divs)), nil
}

func (r *run) consolidate() (string, error) {
	rep := BuildReport(r.inv, r.totals, r.res.Divergences, r.res.Lines, r.p.cfg.LineDetailLimit)
	rep.GeneratedAt = r.p.now()
	r.res.Report = rep
	return "risco " + string(rep.Summary.Risk), nil
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

func loadedTables(m *fiscal.RateMatrix) int {
	n := 0
	for _, c := range m.Counts() {
		if c > 0 {
			n++
		}
	}
	return n
}
