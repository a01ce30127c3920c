package reform_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/reform"
)

const okBody = `{"cbs_aliquota": 0.088, "ibs_aliquota": "17.7", "is_aliquota": 0, "observacao": "vigente"}`

// scriptedServer responde con la secuencia de status indicada y luego 200 con okBody.
func scriptedServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		assert.Equal(t, "/v1/aliquotas/84713012/5102", r.URL.Path)
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, baseURL string, slept *[]time.Duration, opts ...reform.Option) *reform.Client {
	t.Helper()
	opts = append(opts, reform.WithSleeper(func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}))
	c, err := reform.NewClient(reform.Config{BaseURL: baseURL, Timeout: 2 * time.Second}, opts...)
	require.NoError(t, err)
	return c
}

// ──────────────────────────────────────────────────────────────────────────────
// Servicio que responde 503 dos veces y luego 200: se resuelve en el tercer
// intento con dos esperas exponenciales de 2 s y 4 s.
// ──────────────────────────────────────────────────────────────────────────────

func TestResolve_503DosVecesLuego200(t *testing.T) {
	srv, calls := scriptedServer(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept)

	r := c.Resolve(context.Background(), "84713012", "5102")

	assert.Equal(t, entity.ReformSourceRemote, r.Source)
	assert.True(t, decimal.RequireFromString("0.088").Equal(r.CBS))
	assert.True(t, decimal.RequireFromString("0.177").Equal(r.IBS), "porcentaje normalizado")
	assert.True(t, r.IS.IsZero())
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, slept)
}

func TestResolve_429UsaBackoffDeDosSegundos(t *testing.T) {
	srv, _ := scriptedServer(t, http.StatusTooManyRequests)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept)

	r := c.Resolve(context.Background(), "84713012", "5102")
	assert.Equal(t, entity.ReformSourceRemote, r.Source)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
}

func TestResolve_MemoriaEvitaSegundaLlamada(t *testing.T) {
	srv, calls := scriptedServer(t)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept)

	first := c.Resolve(context.Background(), "84713012", "5102")
	second := c.Resolve(context.Background(), "8471.30.12", "5102")

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load(), "la segunda resolución debe salir de la memoria")
	stats := c.Stats()
	assert.EqualValues(t, 1, stats.MemoryHits)
	assert.EqualValues(t, 1, stats.RemoteHits)
}

func TestResolve_404EsTerminalYUsaRespaldo(t *testing.T) {
	srv, calls := scriptedServer(t, http.StatusNotFound, http.StatusNotFound)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept)

	r := c.Resolve(context.Background(), "84713012", "5102")

	assert.EqualValues(t, 1, calls.Load(), "404 no se reintenta")
	assert.Empty(t, slept)
	assert.Equal(t, entity.ReformSourceFallback, r.Source)
	assert.Equal(t, reform.PlaceholderObservation, r.Observation)
	assert.True(t, r.CBS.IsZero() && r.IBS.IsZero() && r.IS.IsZero())
}

func TestResolve_ErrorDesconocidoAbortaSinReintentar(t *testing.T) {
	srv, calls := scriptedServer(t, http.StatusInternalServerError, http.StatusInternalServerError)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept)

	r := c.Resolve(context.Background(), "84713012", "5102")

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, entity.ReformSourceFallback, r.Source)
	assert.EqualValues(t, 1, c.Stats().Fallbacks)
}

func TestResolve_ReintentosAgotadosUsaRespaldo(t *testing.T) {
	srv, calls := scriptedServer(t, 503, 503, 503, 503)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept)

	r := c.Resolve(context.Background(), "84713012", "5102")

	assert.EqualValues(t, 3, calls.Load(), "como máximo tres intentos")
	assert.Len(t, slept, 2, "sin espera tras el último intento")
	assert.Equal(t, entity.ReformSourceFallback, r.Source)
}

func TestResolve_ConexionFallidaBackoffSimple(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var slept []time.Duration
	c := newTestClient(t, url, &slept)
	r := c.Resolve(context.Background(), "84713012", "5102")

	assert.Equal(t, entity.ReformSourceFallback, r.Source)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, slept)
}

func TestResolve_TablaLocalDeRespaldo(t *testing.T) {
	srv, _ := scriptedServer(t, http.StatusNotFound)
	fb := reform.NewFallbackTable()
	fb.Set("84713012", "*", decimal.RequireFromString("0.05"), decimal.Zero, decimal.Zero)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept, reform.WithFallback(fb))

	r := c.Resolve(context.Background(), "84713012", "5102")
	assert.Equal(t, entity.ReformSourceFallback, r.Source)
	assert.True(t, decimal.RequireFromString("0.05").Equal(r.CBS))
}

func TestResolve_CodigoInvalidoNoLlamaAlServicio(t *testing.T) {
	srv, calls := scriptedServer(t)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept)

	r := c.Resolve(context.Background(), "", "5102")
	assert.Equal(t, entity.ReformSourceFallback, r.Source)
	assert.EqualValues(t, 0, calls.Load())
}

func TestResolve_CodigoInvalidoQuedaEnAmbosNiveles(t *testing.T) {
	srv, calls := scriptedServer(t)
	store, err := reform.OpenJSONStore(filepath.Join(t.TempDir(), "cbs_cache.json"))
	require.NoError(t, err)
	var slept []time.Duration
	c := newTestClient(t, srv.URL, &slept, reform.WithDiskStore(store))

	// NCM de nueve dígitos: no se trunca, sigue siendo inválido.
	first := c.Resolve(context.Background(), "847130121", "5102")
	second := c.Resolve(context.Background(), "847130121", "5102")

	assert.Equal(t, first, second)
	assert.Equal(t, entity.ReformSourceFallback, first.Source)
	assert.EqualValues(t, 0, calls.Load())
	stats := c.Stats()
	assert.EqualValues(t, 1, stats.MemoryHits, "la segunda resolución sale de la memoria")
	assert.EqualValues(t, 1, stats.Fallbacks)
	assert.Equal(t, 1, stats.DiskEntries)
	_, ok, err := store.Get("847130121_5102")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolve_TimeoutPorIntentoReintentaConBackoffSimple(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	t.Cleanup(srv.Close)

	var slept []time.Duration
	c, err := reform.NewClient(reform.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond},
		reform.WithSleeper(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}))
	require.NoError(t, err)

	r := c.Resolve(context.Background(), "84713012", "5102")

	assert.Equal(t, entity.ReformSourceRemote, r.Source)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, slept)
}

func TestResolve_CachePersistenteEntreClientes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbs_cache.json")
	srv, calls := scriptedServer(t)
	var slept []time.Duration

	store, err := reform.OpenJSONStore(path)
	require.NoError(t, err)
	first := newTestClient(t, srv.URL, &slept, reform.WithDiskStore(store))
	r1 := first.Resolve(context.Background(), "84713012", "5102")
	require.Equal(t, entity.ReformSourceRemote, r1.Source)

	reopened, err := reform.OpenJSONStore(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
	second := newTestClient(t, srv.URL, &slept, reform.WithDiskStore(reopened))
	r2 := second.Resolve(context.Background(), "84713012", "5102")

	assert.EqualValues(t, 1, calls.Load(), "el segundo cliente lee del disco")
	assert.True(t, r1.CBS.Equal(r2.CBS))
	assert.EqualValues(t, 1, second.Stats().DiskHits)
	assert.Positive(t, second.Stats().DiskBytes)
}

func TestClear_VaciaAmbosNiveles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbs_cache.json")
	srv, calls := scriptedServer(t)
	var slept []time.Duration
	store, err := reform.OpenJSONStore(path)
	require.NoError(t, err)
	c := newTestClient(t, srv.URL, &slept, reform.WithDiskStore(store))

	c.Resolve(context.Background(), "84713012", "5102")
	require.NoError(t, c.Clear())
	assert.Equal(t, reform.Stats{}, c.Stats())
	assert.NoFileExists(t, path)

	c.Resolve(context.Background(), "84713012", "5102")
	assert.EqualValues(t, 2, calls.Load(), "tras Clear se vuelve a consultar el servicio")
}

func TestValidadores(t *testing.T) {
	assert.True(t, reform.ValidNCM("84713012"))
	assert.False(t, reform.ValidNCM("8471301"))
	assert.False(t, reform.ValidNCM("8471301A"))
	assert.True(t, reform.ValidCFOP("5102"))
	assert.False(t, reform.ValidCFOP("51020"))
}
