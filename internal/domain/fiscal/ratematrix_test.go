package fiscal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

func TestRateMatrix_Vacia_UsaDefaults(t *testing.T) {
	m := fiscal.EmptyRateMatrix()

	assert.True(t, m.IsEmpty())
	assert.True(t, fiscal.DefaultICMSRate.Equal(m.ICMSRate("SP")), "ICMS debe caer en 0.18 con tabla vacía")
	assert.True(t, m.FederalRate("PIS").IsZero())
	assert.True(t, m.ServiceTaxRate("1.01").IsZero())
	assert.True(t, m.SubstitutionMarkup("SP", "22030000").IsZero())
	assert.True(t, m.DifferentialRate("SP", "RJ").IsZero())

	var nilMatrix *fiscal.RateMatrix
	assert.True(t, fiscal.DefaultICMSRate.Equal(nilMatrix.ICMSRate("MG")))
}

func TestRateMatrix_Consultas(t *testing.T) {
	b := fiscal.NewRateMatrixBuilder()
	b.Add(fiscal.CategoryFederal, fiscal.RateRow{Primary: "pis", Rate: dec("0.0165")}, "csv")
	b.Add(fiscal.CategoryFederal, fiscal.RateRow{Primary: "PIS", Rate: dec("0.99")}, "csv")
	b.Add(fiscal.CategoryICMSState, fiscal.RateRow{Primary: "rj", Rate: dec("0.20")}, "csv")
	b.Add(fiscal.CategoryICMSInterstate, fiscal.RateRow{Primary: "SP", Secondary: "BA", Rate: dec("0.07")}, "csv")
	b.Add(fiscal.CategoryService, fiscal.RateRow{Primary: "1.05", Rate: dec("0.05")}, "csv")
	b.Add(fiscal.CategoryMarkup, fiscal.RateRow{Primary: "SP", Secondary: "2203.00.00", Rate: dec("0.40")}, "csv")
	b.Add(fiscal.CategoryDifferential, fiscal.RateRow{Primary: "SP", Secondary: "BA", Rate: dec("0.11")}, "csv")
	b.Add(fiscal.CategoryDifferential, fiscal.RateRow{Primary: "SP", Secondary: "SP", Rate: dec("0.11")}, "csv")
	m := b.Build()

	assert.True(t, dec("0.0165").Equal(m.FederalRate("Pis")), "primera coincidencia, sin distinguir mayúsculas")
	assert.True(t, dec("0.20").Equal(m.ICMSRate("RJ")))
	assert.True(t, fiscal.DefaultICMSRate.Equal(m.ICMSRate("AM")))
	assert.True(t, dec("0.07").Equal(m.InterstateICMSRate("SP", "BA")))
	assert.True(t, dec("0.05").Equal(m.ServiceTaxRate("1.05")))
	assert.True(t, dec("0.40").Equal(m.SubstitutionMarkup("SP", "22030000")))
	assert.True(t, m.SubstitutionMarkup("RJ", "22030000").IsZero())
	assert.True(t, dec("0.11").Equal(m.DifferentialRate("SP", "BA")))
	assert.True(t, m.DifferentialRate("SP", "SP").IsZero(), "DIFAL nulo con origen igual a destino")

	counts := m.Counts()
	assert.Equal(t, 1, counts[fiscal.CategoryFederal])
	assert.Equal(t, 2, counts[fiscal.CategoryDifferential])
	assert.False(t, m.IsEmpty())
}

func TestRateMatrixBuilder_BuildNoCompartePublicada(t *testing.T) {
	b := fiscal.NewRateMatrixBuilder()
	b.Add(fiscal.CategoryICMSState, fiscal.RateRow{Primary: "SP", Rate: dec("0.18")}, "csv")
	m := b.Build()
	b.Add(fiscal.CategoryICMSState, fiscal.RateRow{Primary: "MG", Rate: dec("0.12")}, "csv")

	assert.Equal(t, 1, m.Counts()[fiscal.CategoryICMSState], "la matriz publicada no debe cambiar")
	assert.False(t, b.Add(fiscal.CategoryICMSState, fiscal.RateRow{Primary: " "}, "csv"), "fila sin clave")
}
