package fiscal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

func TestReconcile_BajoUmbralNoEmite(t *testing.T) {
	computed := entity.NewAggregateTotals(entity.TaxICMS)
	computed.Set(entity.TaxICMS, dec("108.004"))

	divs := fiscal.Reconcile(computed, entity.DeclaredTotals{entity.TaxICMS: dec("108.00")})
	assert.Empty(t, divs, "diferencia menor a un centavo tras redondear no es divergencia")
}

func TestReconcile_UnCentavoEmiteConSigno(t *testing.T) {
	computed := entity.NewAggregateTotals(entity.TaxICMS, entity.TaxPIS)
	computed.Set(entity.TaxICMS, dec("108.00"))
	computed.Set(entity.TaxPIS, dec("9.90"))

	divs := fiscal.Reconcile(computed, entity.DeclaredTotals{
		entity.TaxICMS: dec("108.01"),
		entity.TaxPIS:  dec("5"),
	})
	require.Len(t, divs, 2)

	assert.Equal(t, entity.TaxICMS, divs[0].TaxType)
	assertMoney(t, "-0.01", divs[0].Difference, "difference = calculado - declarado")
	assert.Equal(t, entity.TaxPIS, divs[1].TaxType)
	assertMoney(t, "4.90", divs[1].Difference)
}

func TestReconcile_DeclaradoAusenteSeOmite(t *testing.T) {
	computed := entity.NewAggregateTotals(entity.LegacyTaxes...)
	computed.Set(entity.TaxCOFINS, dec("45.60"))

	divs := fiscal.Reconcile(computed, entity.DeclaredTotals{entity.TaxIPI: dec("0")})
	assert.Empty(t, divs, "sólo se comparan tributos declarados")

	divs = fiscal.Reconcile(computed, nil)
	assert.Empty(t, divs)
}

func TestReconcile_OrdenDeInsercion(t *testing.T) {
	computed := entity.NewAggregateTotals()
	computed.Set(entity.TaxCSLL, dec("10"))
	computed.Set(entity.TaxICMS, dec("10"))
	computed.Set(entity.TaxCBS, dec("10"))
	declared := entity.DeclaredTotals{entity.TaxICMS: dec("0"), entity.TaxCSLL: dec("0"), entity.TaxCBS: dec("0")}

	divs := fiscal.Reconcile(computed, declared)
	require.Len(t, divs, 3)
	assert.Equal(t, []entity.TaxType{entity.TaxCSLL, entity.TaxICMS, entity.TaxCBS},
		[]entity.TaxType{divs[0].TaxType, divs[1].TaxType, divs[2].TaxType})
}
