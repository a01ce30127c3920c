package fiscal_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, dec(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func item(value string) entity.LineItem {
	return entity.LineItem{ProductCode: "22030000", OperationCode: "5102", TotalValue: dec(value)}
}

// federalMatrix matriz con las cinco alícuotas federales y una UF configurada.
func federalMatrix(t *testing.T, extra func(b *fiscal.RateMatrixBuilder)) *fiscal.RateMatrix {
	t.Helper()
	b := fiscal.NewRateMatrixBuilder()
	for name, rate := range map[string]string{
		"IPI": "0.10", "PIS": "0.0165", "COFINS": "0.076", "IRPJ": "0.15", "CSLL": "0.09",
	} {
		b.Add(fiscal.CategoryFederal, fiscal.RateRow{Primary: name, Rate: dec(rate)}, "test")
	}
	b.Add(fiscal.CategoryICMSState, fiscal.RateRow{Primary: "SP", Rate: dec("0.18")}, "test")
	if extra != nil {
		extra(b)
	}
	return b.Build()
}

func linesOf(lines []entity.ComputedTaxLine, tt entity.TaxType) []entity.ComputedTaxLine {
	var out []entity.ComputedTaxLine
	for _, l := range lines {
		if l.TaxType == tt {
			out = append(out, l)
		}
	}
	return out
}
