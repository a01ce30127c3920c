package audit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fiscal-validator/internal/application/audit"
	"github.com/jhoicas/fiscal-validator/internal/domain"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

// ── Fakes ──

type loaderFunc func(ctx context.Context) (*fiscal.RateMatrix, error)

func (f loaderFunc) Load(ctx context.Context) (*fiscal.RateMatrix, error) { return f(ctx) }

type fixedResolver struct {
	mu    sync.Mutex
	calls int
	rate  entity.ReformRate
}

func (r *fixedResolver) Resolve(_ context.Context, _, _ string) entity.ReformRate {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.rate
}

type recordingWriter struct {
	got *audit.Result
	err error
}

func (w *recordingWriter) Write(_ context.Context, res *audit.Result) error {
	w.got = res
	return w.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, dec(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func matrix() *fiscal.RateMatrix {
	b := fiscal.NewRateMatrixBuilder()
	for name, rate := range map[string]string{
		"IPI": "0.10", "PIS": "0.0165", "COFINS": "0.076", "IRPJ": "0.15", "CSLL": "0.09",
	} {
		b.Add(fiscal.CategoryFederal, fiscal.RateRow{Primary: name, Rate: dec(rate)}, "test")
	}
	b.Add(fiscal.CategoryICMSState, fiscal.RateRow{Primary: "SP", Rate: dec("0.18")}, "test")
	return b.Build()
}

func staticLoader(m *fiscal.RateMatrix, err error) audit.RateMatrixLoader {
	return loaderFunc(func(context.Context) (*fiscal.RateMatrix, error) { return m, err })
}

func invoice() *entity.Invoice {
	mk := func(v string) entity.LineItem {
		return entity.LineItem{ProductCode: "22030000", OperationCode: "5102", TotalValue: dec(v)}
	}
	return &entity.Invoice{
		ID: "nf-1", IssuerState: "SP", RecipientState: "SP",
		Items: []entity.LineItem{mk("100"), mk("200"), mk("300")},
		Declared: entity.DeclaredTotals{
			entity.TaxICMS: dec("108"),
			entity.TaxIPI:  dec("50"),
			entity.TaxPIS:  dec("9.90"),
		},
	}
}

func stagesOf(trace []entity.ProgressEvent, st entity.Stage) []entity.ProgressEvent {
	var out []entity.ProgressEvent
	for _, ev := range trace {
		if ev.Stage == st {
			out = append(out, ev)
		}
	}
	return out
}

// ── Escenario completo ──

func TestPipeline_Run_Completo(t *testing.T) {
	res := &fixedResolver{rate: entity.ReformRate{CBS: dec("0.10"), IBS: dec("0.05"), Source: entity.ReformSourceRemote}}
	trace := audit.NewMemoryTrace()
	w := &recordingWriter{}
	p := audit.NewPipeline(audit.Config{UseReformTaxes: true, WorkerCount: 2, ChunkSize: 2},
		staticLoader(matrix(), nil), res, audit.WithSinks(trace), audit.WithWriters(w))

	out := p.Run(context.Background(), invoice())

	require.Equal(t, entity.StageDone, out.Status)
	assert.Nil(t, out.Failure)
	assert.NotEmpty(t, out.RunID)
	assert.Same(t, out, w.got, "el writer recibe el resultado final")
	assert.Equal(t, 1, res.calls, "una sola clave NCM/CFOP")

	want := append(append([]entity.TaxType{}, entity.LegacyTaxes...), entity.ReformTaxes...)
	assert.Equal(t, want, out.Totals.Types())
	assertMoney(t, "108", out.Totals.Get(entity.TaxICMS))
	assertMoney(t, "60", out.Totals.Get(entity.TaxIPI))
	assertMoney(t, "60", out.Totals.Get(entity.TaxCBS))
	assertMoney(t, "30", out.Totals.Get(entity.TaxIBS))
	assertMoney(t, "0", out.Totals.Get(entity.TaxIS))
	assert.Len(t, out.Lines, 3*12)

	require.Len(t, out.Divergences, 1)
	assert.Equal(t, entity.TaxIPI, out.Divergences[0].TaxType)
	assertMoney(t, "10", out.Divergences[0].Difference)

	require.NotNil(t, out.Report)
	assert.Equal(t, audit.RiskMedium, out.Report.Summary.Risk)
	assertMoney(t, "177.90", out.Report.Summary.TotalComputed)
	assertMoney(t, "167.90", out.Report.Summary.TotalDeclared)
	assertMoney(t, "5.96", out.Report.Summary.DivergencePercent)

	// Trace: cada etapa abre con start y cierra con ok; el último evento es DONE.
	for _, st := range []entity.Stage{
		entity.StageLoadingRates, entity.StageComputingLegacy, entity.StageResolvingReform,
		entity.StageReconciling, entity.StageConsolidating,
	} {
		evs := stagesOf(out.StageTrace, st)
		require.NotEmpty(t, evs, "etapa %s sin eventos", st)
		assert.Equal(t, entity.StatusStart, evs[0].Status, st)
		assert.Equal(t, entity.StatusOK, evs[len(evs)-1].Status, st)
		assert.Equal(t, 100, evs[len(evs)-1].Percent, st)
	}
	last := out.StageTrace[len(out.StageTrace)-1]
	assert.Equal(t, entity.StageDone, last.Stage)
	assert.Equal(t, out.StageTrace, trace.Events(), "el sink recibe la misma secuencia")

	running := stagesOf(out.StageTrace, entity.StageComputingLegacy)
	assert.Len(t, running, 3, "start, un running (lote 1 de 2) y ok")
}

func TestPipeline_Run_ReformaDeshabilitada(t *testing.T) {
	res := &fixedResolver{rate: entity.ReformRate{CBS: dec("0.10")}}
	p := audit.NewPipeline(audit.Config{UseReformTaxes: false}, staticLoader(matrix(), nil), res)

	out := p.Run(context.Background(), invoice())

	require.Equal(t, entity.StageDone, out.Status)
	assert.Zero(t, res.calls)
	evs := stagesOf(out.StageTrace, entity.StageResolvingReform)
	require.Len(t, evs, 1)
	assert.Equal(t, entity.StatusOK, evs[0].Status)
	assert.Equal(t, "desabilitado", evs[0].Message)
	for _, tt := range entity.ReformTaxes {
		assert.True(t, out.Totals.Has(tt))
		assert.True(t, out.Totals.Get(tt).IsZero())
	}
	assert.False(t, out.Reform.Enabled)
	assert.Len(t, out.Lines, 3*9)
}

func TestPipeline_Run_ResolverNilDeshabilita(t *testing.T) {
	p := audit.NewPipeline(audit.Config{UseReformTaxes: true}, staticLoader(matrix(), nil), nil)
	out := p.Run(context.Background(), invoice())
	require.Equal(t, entity.StageDone, out.Status)
	assert.Equal(t, "desabilitado", stagesOf(out.StageTrace, entity.StageResolvingReform)[0].Message)
}

// ── Fallas ──

func TestPipeline_Run_MatrizCorrupta(t *testing.T) {
	w := &recordingWriter{}
	p := audit.NewPipeline(audit.Config{}, staticLoader(nil, fmt.Errorf("federais: %w", domain.ErrCorruptRateTable)), nil,
		audit.WithWriters(w))

	out := p.Run(context.Background(), invoice())

	require.True(t, out.Failed())
	require.NotNil(t, out.Failure)
	assert.Equal(t, entity.StageLoadingRates, out.Failure.Stage)
	assert.Contains(t, out.Failure.Error, domain.ErrCorruptRateTable.Error())
	assert.Nil(t, out.Report)
	assert.Nil(t, out.Totals)
	assert.Empty(t, stagesOf(out.StageTrace, entity.StageComputingLegacy), "las etapas siguientes no se aplican")
	last := out.StageTrace[len(out.StageTrace)-1]
	assert.Equal(t, entity.StageFailed, last.Stage)
	assert.Same(t, out, w.got, "el registro de falla también se escribe")
}

func TestPipeline_Run_SinFuentesContinuaConDefaults(t *testing.T) {
	p := audit.NewPipeline(audit.Config{}, staticLoader(fiscal.EmptyRateMatrix(), domain.ErrDataUnavailable), nil)
	out := p.Run(context.Background(), invoice())

	require.Equal(t, entity.StageDone, out.Status)
	assert.NotEmpty(t, out.Warnings)
	assertMoney(t, "108", out.Totals.Get(entity.TaxICMS), "ICMS con la alícuota por defecto")
	assertMoney(t, "0", out.Totals.Get(entity.TaxPIS))
}

func TestPipeline_Run_CanceladoEntreEtapas(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loader := loaderFunc(func(context.Context) (*fiscal.RateMatrix, error) {
		cancel()
		return matrix(), nil
	})
	p := audit.NewPipeline(audit.Config{}, loader, nil)

	out := p.Run(ctx, invoice())

	require.True(t, out.Failed())
	assert.Equal(t, entity.StageComputingLegacy, out.Failure.Stage)
	assert.Contains(t, out.Failure.Error, domain.ErrCanceled.Error())
	assert.Equal(t, entity.StatusOK, stagesOf(out.StageTrace, entity.StageLoadingRates)[1].Status,
		"la etapa en curso termina")
}

func TestPipeline_Run_PanicoEnEtapa(t *testing.T) {
	loader := loaderFunc(func(context.Context) (*fiscal.RateMatrix, error) {
		panic("tabla inconsistente")
	})
	p := audit.NewPipeline(audit.Config{}, loader, nil)

	out := p.Run(context.Background(), invoice())

	require.True(t, out.Failed())
	assert.Equal(t, entity.StageLoadingRates, out.Failure.Stage)
	assert.Contains(t, out.Failure.Error, "tabla inconsistente")
	assert.Contains(t, out.Failure.Error, domain.ErrStageFailure.Error())
	assert.NotEmpty(t, out.Failure.Stack)
}

func TestPipeline_Run_ErrorDelWriterNoFallaLaEjecucion(t *testing.T) {
	w := &recordingWriter{err: errors.New("disco lleno")}
	p := audit.NewPipeline(audit.Config{}, staticLoader(matrix(), nil), nil, audit.WithWriters(w))

	out := p.Run(context.Background(), invoice())

	assert.Equal(t, entity.StageDone, out.Status)
	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[len(out.Warnings)-1], "disco lleno")
}

func TestPipeline_Run_EjecucionesIndependientes(t *testing.T) {
	p := audit.NewPipeline(audit.Config{WorkerCount: 2, ChunkSize: 1}, staticLoader(matrix(), nil), nil)

	var wg sync.WaitGroup
	results := make([]*audit.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Run(context.Background(), invoice())
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, r := range results {
		require.Equal(t, entity.StageDone, r.Status)
		assertMoney(t, "108", r.Totals.Get(entity.TaxICMS))
		ids[r.RunID] = true
	}
	assert.Len(t, ids, len(results))
}

func TestPipeline_Run_CNPJInvalidoEsAdvertencia(t *testing.T) {
	inv := invoice()
	inv.IssuerTaxID = "11.222.333/0001-00"

	p := audit.NewPipeline(audit.Config{}, staticLoader(matrix(), nil), nil)
	out := p.Run(context.Background(), inv)

	require.Equal(t, entity.StageDone, out.Status, "la observación no aborta la ejecución")
	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[0], "CNPJ")
}

func TestPipeline_Run_ItemMalformadoEsAdvertencia(t *testing.T) {
	inv := invoice()
	inv.Items[1].Malformed = true

	p := audit.NewPipeline(audit.Config{}, staticLoader(matrix(), nil), nil)
	out := p.Run(context.Background(), inv)

	require.Equal(t, entity.StageDone, out.Status)
	assert.Equal(t, 1, out.LegacyStats.Malformed)
	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[len(out.Warnings)-1], domain.ErrMalformedItem.Error())
}
