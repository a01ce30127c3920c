package ingest_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fiscal-validator/internal/application/ingest"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
)

func TestNormalizeItem_Sinonimos(t *testing.T) {
	cases := []ingest.Record{
		{"codigo": "A1", "ncm": "22030000", "cfop": "5102", "valor_total": "1.234,56", "qtd": "2"},
		{"Cod": "A1", "NCM": "22030000", "CFOP": 5102.0, "vl_total": 1234.56, "quantidade": 2.0},
		{"cProd": "A1", "NCM": "22030000", "CFOP": "5102", "vProd": "1234.56", "qCom": "2"},
		{"code": "A1", "product_code": "22030000", "operation_code": "5102", "total_value": json.Number("1234.56"), "quantity": 2},
	}
	for i, rec := range cases {
		it := ingest.NormalizeItem(rec)
		assert.Equal(t, "A1", it.Code, "caso %d", i)
		assert.Equal(t, "22030000", it.ProductCode, "caso %d", i)
		assert.Equal(t, "5102", it.OperationCode, "caso %d", i)
		assert.Equal(t, "1234.56", it.TotalValue.StringFixed(2), "caso %d", i)
		assert.True(t, decimal.NewFromInt(2).Equal(it.Quantity), "caso %d", i)
		assert.False(t, it.Malformed, "caso %d", i)
	}
}

func TestNormalizeItem_PrimerSinonimoGana(t *testing.T) {
	it := ingest.NormalizeItem(ingest.Record{"valor_total": "10", "vl_total": "99"})
	assert.Equal(t, "10", it.TotalValue.String())

	it = ingest.NormalizeItem(ingest.Record{"valor_total": "", "vl_total": "99"})
	assert.Equal(t, "99", it.TotalValue.String(), "un sinónimo vacío no cuenta")
}

func TestNormalizeItem_ValorInvalidoSeCoerciona(t *testing.T) {
	it := ingest.NormalizeItem(ingest.Record{"ncm": "22030000", "valor_total": "n/d"})
	assert.True(t, it.Malformed)
	assert.True(t, it.TotalValue.IsZero())

	it = ingest.NormalizeItem(ingest.Record{"ncm": "22030000"})
	assert.True(t, it.Malformed, "valor total ausente")
	assert.True(t, decimal.NewFromInt(1).Equal(it.Quantity), "cantidad por defecto 1")
}

func TestNormalizeItem_NoContribuyente(t *testing.T) {
	assert.True(t, ingest.NormalizeItem(ingest.Record{"nao_contribuinte": "true"}).NonContributor)
	assert.True(t, ingest.NormalizeItem(ingest.Record{"non_contributor": true}).NonContributor)
	assert.True(t, ingest.NormalizeItem(ingest.Record{"nao_contribuinte": "S"}).NonContributor)
	assert.True(t, ingest.NormalizeItem(ingest.Record{"indIEDest": "9"}).NonContributor)
	assert.False(t, ingest.NormalizeItem(ingest.Record{"indIEDest": "1"}).NonContributor)
	assert.False(t, ingest.NormalizeItem(ingest.Record{"descricao": "NAO CONTRIBUINTE"}).NonContributor,
		"el marcador es un campo explícito, no una búsqueda de texto")
}

func TestBuildInvoice(t *testing.T) {
	p := ingest.Payload{
		Header: ingest.Record{"emitente_cnpj": "12345678000199", "emissor_uf": "sp", "uf_destinatario": "BA", "vICMS": "108.00"},
		Items: []ingest.Record{
			{"valor_total": "100", "vIPI": "10"},
			{"valor_total": "abc"},
			{"valor_total": "300", "subitem_lc116": "1.05"},
		},
		Declared: ingest.Record{"icms": 100.0, "IS": "0"},
	}
	inv, st := ingest.BuildInvoice(p)

	assert.Equal(t, "SP", inv.IssuerState)
	assert.Equal(t, "BA", inv.RecipientState)
	require.Len(t, inv.Items, 3)
	assert.Equal(t, 3, st.Items)
	assert.Equal(t, 1, st.Malformed)
	assert.True(t, inv.HasServiceItems())
	assert.Equal(t, "400", inv.TotalDeclaredValue.String(), "sin total en cabecera se suma el de los ítems")

	icms, ok := inv.Declared.Lookup(entity.TaxICMS)
	require.True(t, ok)
	assert.Equal(t, "100", icms.String(), "declared tiene prioridad sobre la cabecera")
	ipi, ok := inv.Declared.Lookup(entity.TaxIPI)
	require.True(t, ok, "declarado tomado de la primera fila")
	assert.Equal(t, "10", ipi.String())
	_, ok = inv.Declared.Lookup(entity.TaxIS)
	assert.True(t, ok)
	_, ok = inv.Declared.Lookup(entity.TaxPIS)
	assert.False(t, ok, "ausente queda ausente")
}

func TestDeclaredFromRecord(t *testing.T) {
	d := ingest.DeclaredFromRecord(ingest.Record{"vCOFINS": "45,60", "pis": "n/d"})
	v, ok := d.Lookup(entity.TaxCOFINS)
	require.True(t, ok)
	assert.Equal(t, "45.6", v.String())
	_, ok = d.Lookup(entity.TaxPIS)
	assert.False(t, ok, "valor no numérico es desconocido")
}
