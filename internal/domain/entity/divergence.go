package entity

import "github.com/shopspring/decimal"

// Divergence diferencia material entre el valor declarado y el calculado de un tributo.
// Difference = Computed - Declared (se preserva el signo).
type Divergence struct {
	TaxType    TaxType         `json:"tax_type"`
	Declared   decimal.Decimal `json:"declared"`
	Computed   decimal.Decimal `json:"computed"`
	Difference decimal.Decimal `json:"difference"`
}
