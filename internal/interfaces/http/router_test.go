package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fiscal-validator/internal/application/audit"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/reform"
	apphttp "github.com/jhoicas/fiscal-validator/internal/interfaces/http"
)

// ── Fakes ──

type fakeRunner struct {
	got    *entity.Invoice
	status entity.Stage
}

func (f *fakeRunner) Run(_ context.Context, inv *entity.Invoice) *audit.Result {
	f.got = inv
	st := f.status
	if st == "" {
		st = entity.StageDone
	}
	return &audit.Result{RunID: "run-1", Status: st, Divergences: []entity.Divergence{}}
}

type fakeRenderer struct{}

func (fakeRenderer) GenerateReportPDF(context.Context, *audit.Result) ([]byte, error) {
	return []byte("%PDF-1.3 fake"), nil
}

type fakeRates struct {
	cleared  bool
	clearErr error
}

func (f *fakeRates) Resolve(_ context.Context, ncm, cfop string) entity.ReformRate {
	return entity.ReformRate{CBS: decimal.RequireFromString("0.088"), Source: entity.ReformSourceRemote}
}

func (f *fakeRates) Stats() reform.Stats { return reform.Stats{MemoryEntries: 3, RemoteCalls: 2} }

func (f *fakeRates) Clear() error {
	f.cleared = true
	return f.clearErr
}

func newApp(deps apphttp.RouterDeps) *fiber.App {
	app := fiber.New()
	deps.Log = zerolog.Nop()
	apphttp.Router(app, deps)
	return app
}

func send(t *testing.T, app *fiber.App, method, path, auth string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func auditBody() map[string]any {
	return map[string]any{
		"header": map[string]any{"uf_emitente": "SP", "uf_destinatario": "RJ"},
		"items": []map[string]any{
			{"ncm": "22030000", "cfop": "5102", "vProd": "1.234,50"},
			{"ncm": "22030000", "cfop": "5102", "valor_total": 100},
		},
		"declared": map[string]any{"vICMS": 240},
	}
}

// ── Health / metrics ──

func TestRouter_HealthYMetrics(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{}, ServiceName: "fiscal"})

	resp := send(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(t, app, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "go_goroutines")
}

// ── Auditorías ──

func TestAuditHandler_Create_NormalizaSinonimos(t *testing.T) {
	runner := &fakeRunner{}
	app := newApp(apphttp.RouterDeps{Audits: runner})

	resp := send(t, app, http.MethodPost, "/api/audits", "", auditBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, runner.got)
	require.Len(t, runner.got.Items, 2)
	assert.Equal(t, "1234.5", runner.got.Items[0].TotalValue.String())
	assert.Equal(t, "100", runner.got.Items[1].TotalValue.String())
	d, ok := runner.got.Declared.Lookup(entity.TaxICMS)
	require.True(t, ok)
	assert.Equal(t, "240", d.String())

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	result := body["result"].(map[string]any)
	assert.Equal(t, "run-1", result["run_id"])
	assert.Equal(t, "DONE", result["status"])
}

func TestAuditHandler_Create_SinItems(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{}})
	resp := send(t, app, http.MethodPost, "/api/audits", "", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuditHandler_Create_EjecucionFallida(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{status: entity.StageFailed}})
	resp := send(t, app, http.MethodPost, "/api/audits", "", auditBody())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAuditHandler_Create_PDF(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{}, Reports: fakeRenderer{}})

	resp := send(t, app, http.MethodPost, "/api/audits?format=pdf", "", auditBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF")))
}

func TestAuditHandler_Create_PDFDeshabilitado(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{}})
	resp := send(t, app, http.MethodPost, "/api/audits?format=pdf", "", auditBody())
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

// ── Alícuotas de la reforma ──

func TestReformHandler_GetRate(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{}, ReformRates: &fakeRates{}})

	resp := send(t, app, http.MethodGet, "/api/reform-rates/2203.00.00/5102", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "22030000", body["ncm"])
	assert.Equal(t, "0.088", body["cbs_aliquota"])
	assert.Equal(t, "remote", body["fonte"])

	resp = send(t, app, http.MethodGet, "/api/reform-rates/abc/5102", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReformHandler_CacheRequiereAdminParaVaciar(t *testing.T) {
	rates := &fakeRates{}
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{}, ReformRates: rates, JWTSecret: testJWTSecret})

	resp := send(t, app, http.MethodGet, "/api/reform-rates/cache", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = send(t, app, http.MethodGet, "/api/reform-rates/cache", tokenForRole(t, "auditor"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats reform.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 3, stats.MemoryEntries)

	resp = send(t, app, http.MethodDelete, "/api/reform-rates/cache", tokenForRole(t, "auditor"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, rates.cleared)

	resp = send(t, app, http.MethodDelete, "/api/reform-rates/cache", tokenForRole(t, "admin"), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, rates.cleared)
}

func TestReformHandler_ClearError(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{}, ReformRates: &fakeRates{clearErr: errors.New("disco")}})
	resp := send(t, app, http.MethodDelete, "/api/reform-rates/cache", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestReformHandler_SinReformaNoRegistraRutas(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Audits: &fakeRunner{}})
	resp := send(t, app, http.MethodGet, "/api/reform-rates/cache", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
