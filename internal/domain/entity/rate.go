package entity

import "github.com/shopspring/decimal"

// RateEntry alícuota normalizada en [0, 1] con metadatos de origen.
type RateEntry struct {
	Rate        decimal.Decimal
	Source      string
	Observation string
}

// Fuentes de una alícuota de la reforma.
const (
	ReformSourceRemote   = "remote"
	ReformSourceFallback = "fallback"
)

// ReformRate alícuotas CBS/IBS/IS resueltas para un par (NCM, CFOP).
type ReformRate struct {
	CBS         decimal.Decimal `json:"cbs_aliquota"`
	IBS         decimal.Decimal `json:"ibs_aliquota"`
	IS          decimal.Decimal `json:"is_aliquota"`
	Source      string          `json:"fonte"`
	Observation string          `json:"observacao,omitempty"`
}

// RateFor devuelve la alícuota del tributo de la reforma indicado.
func (r ReformRate) RateFor(tt TaxType) decimal.Decimal {
	switch tt {
	case TaxCBS:
		return r.CBS
	case TaxIBS:
		return r.IBS
	case TaxIS:
		return r.IS
	default:
		return decimal.Zero
	}
}
