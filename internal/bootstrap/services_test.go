package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fiscal-validator/internal/application/ingest"
	"github.com/jhoicas/fiscal-validator/internal/bootstrap"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/ratematrix"
	"github.com/jhoicas/fiscal-validator/pkg/config"
)

func writeMatrix(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"Federais.csv": "tributo;aliquota\nIPI;10%\nPIS;1,65%\nCOFINS;7,6%\nIRPJ;15\nCSLL;9\n",
		"ICMS_uf.csv":  "uf,aliquota\nSP,0.18\nRJ,0.20\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func loadConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	return cfg
}

func payload() ingest.Payload {
	return ingest.Payload{
		Header: ingest.Record{"uf_emitente": "SP", "uf_destinatario": "SP"},
		Items: []ingest.Record{
			{"ncm": "22030000", "cfop": "5102", "valor_total": "1000,00"},
		},
		Declared: ingest.Record{"vICMS": "180"},
	}
}

func TestNew_SinReforma(t *testing.T) {
	tmp := t.TempDir()
	cfg := loadConfig(t, map[string]any{
		"USE_REFORM_TAXES": "false",
		"MATRIZ_DIR":       writeMatrix(t),
		"MATRIZ_DB_PATH":   filepath.Join(tmp, "ausente.db"),
	})

	svc, err := bootstrap.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()
	assert.Nil(t, svc.Reform)

	inv, _ := ingest.BuildInvoice(payload())
	res := svc.Pipeline.Run(context.Background(), inv)

	require.Equal(t, entity.StageDone, res.Status)
	assert.Equal(t, "180.00", res.Totals.Get(entity.TaxICMS).StringFixed(2))
	assert.Equal(t, "100.00", res.Totals.Get(entity.TaxIPI).StringFixed(2))
	assert.Equal(t, "16.50", res.Totals.Get(entity.TaxPIS).StringFixed(2))
	assert.Empty(t, res.Divergences)
}

func TestNew_ConReformaRemota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/aliquotas/22030000/5102", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cbs_aliquota": 0.088, "ibs_aliquota": "17,7%", "is_aliquota": 0}`))
	}))
	defer srv.Close()

	tmp := t.TempDir()
	cfg := loadConfig(t, map[string]any{
		"USE_REFORM_TAXES":  "true",
		"REFORM_API_URL":    srv.URL,
		"REFORM_CACHE_PATH": filepath.Join(tmp, "cache", "cbs_cache.json"),
		"MATRIZ_DIR":        writeMatrix(t),
		"MATRIZ_DB_PATH":    filepath.Join(tmp, "ausente.db"),
	})

	svc, err := bootstrap.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()
	require.NotNil(t, svc.Reform)

	inv, _ := ingest.BuildInvoice(payload())
	res := svc.Pipeline.Run(context.Background(), inv)

	require.Equal(t, entity.StageDone, res.Status)
	assert.Equal(t, "88.00", res.Totals.Get(entity.TaxCBS).StringFixed(2))
	assert.Equal(t, "177.00", res.Totals.Get(entity.TaxIBS).StringFixed(2))
	assert.Equal(t, 1, svc.Reform.Stats().DiskEntries, "la resolución queda persistida")
}

func TestNewReformClient_BackendInvalido(t *testing.T) {
	cfg := loadConfig(t, map[string]any{"REFORM_CACHE_BACKEND": "redis"})
	_, err := bootstrap.NewReformClient(cfg.Reform, zerolog.Nop())
	assert.Error(t, err)
}

// dbSource fuente en memoria que ocupa el lugar de PostgreSQL.
type dbSource struct {
	tables map[string][]ratematrix.RawRow
}

func (s dbSource) Name() string { return "postgres" }

func (s dbSource) Rows(_ context.Context, t ratematrix.Table) ([]ratematrix.RawRow, error) {
	rows, ok := s.tables[t.SQLTable]
	if !ok {
		return nil, ratematrix.ErrTableMissing
	}
	return rows, nil
}

func TestRateSources_PostgresPrimero(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.MatrixConfig{Dir: writeMatrix(t), DBPath: filepath.Join(tmp, "ausente.db")}
	db := dbSource{tables: map[string][]ratematrix.RawRow{
		"icms_uf": {{Primary: "SP", Rate: "0.17"}},
	}}

	loader := ratematrix.NewLoader(zerolog.Nop(), bootstrap.RateSources(cfg, db)...)
	assert.Equal(t, []string{"postgres", "sqlite", "csv"}, loader.Sources())

	m, rep, err := loader.LoadWithReport(context.Background())
	require.NoError(t, err)
	bySource := map[fiscal.Category]string{}
	for _, tl := range rep.Tables {
		bySource[tl.Category] = tl.Source
	}
	assert.Equal(t, "postgres", bySource[fiscal.CategoryICMSState], "icms_uf existe en la base y en el CSV: gana la base")
	assert.Equal(t, "csv", bySource[fiscal.CategoryFederal], "federais sólo está en el CSV")
	assert.Equal(t, "0.17", m.ICMSRate("SP").String())
}

func TestRateSources_SinBase(t *testing.T) {
	cfg := config.MatrixConfig{Dir: t.TempDir(), DBPath: "matriz.db"}
	loader := ratematrix.NewLoader(zerolog.Nop(), bootstrap.RateSources(cfg, nil)...)
	assert.Equal(t, []string{"sqlite", "csv"}, loader.Sources())
}
