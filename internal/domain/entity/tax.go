package entity

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TaxType identifica un tributo calculado por el motor.
type TaxType string

// Tributos legados (nueve) y de la reforma (tres).
const (
	TaxICMS   TaxType = "icms"
	TaxST     TaxType = "st"
	TaxDIFAL  TaxType = "difal"
	TaxIPI    TaxType = "ipi"
	TaxPIS    TaxType = "pis"
	TaxCOFINS TaxType = "cofins"
	TaxISS    TaxType = "iss"
	TaxIRPJ   TaxType = "irpj"
	TaxCSLL   TaxType = "csll"
	TaxCBS    TaxType = "cbs"
	TaxIBS    TaxType = "ibs"
	TaxIS     TaxType = "is"
)

// LegacyTaxes orden canónico de los tributos legados.
var LegacyTaxes = []TaxType{TaxICMS, TaxST, TaxDIFAL, TaxIPI, TaxPIS, TaxCOFINS, TaxISS, TaxIRPJ, TaxCSLL}

// ReformTaxes orden canónico de los tributos de la reforma.
var ReformTaxes = []TaxType{TaxCBS, TaxIBS, TaxIS}

// ParseTaxType acepta el nombre en cualquier capitalización (y el alias "is_").
func ParseTaxType(s string) (TaxType, bool) {
	t := TaxType(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_"))
	for _, known := range LegacyTaxes {
		if t == known {
			return t, true
		}
	}
	for _, known := range ReformTaxes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Upper devuelve el nombre en mayúsculas (ICMS, COFINS...).
func (t TaxType) Upper() string { return strings.ToUpper(string(t)) }

// ComputedTaxLine detalle de un tributo calculado para un ítem.
type ComputedTaxLine struct {
	ItemIndex int             `json:"item_index"` // posición original del ítem (base 0)
	TaxType   TaxType         `json:"tax_type"`
	Base      decimal.Decimal `json:"base"`
	Rate      decimal.Decimal `json:"rate"`
	Value     decimal.Decimal `json:"value"`
	Source    string          `json:"source"`
}

// AggregateTotals suma por tributo preservando el orden de inserción.
// El orden de iteración define el orden de salida de la conciliación.
type AggregateTotals struct {
	order  []TaxType
	values map[TaxType]decimal.Decimal
}

// NewAggregateTotals crea los totales con las claves indicadas en cero, en ese orden.
func NewAggregateTotals(types ...TaxType) *AggregateTotals {
	t := &AggregateTotals{values: make(map[TaxType]decimal.Decimal, len(types))}
	for _, tt := range types {
		t.Set(tt, decimal.Zero)
	}
	return t
}

// Set asigna el valor; una clave nueva se agrega al final del orden.
func (t *AggregateTotals) Set(tt TaxType, v decimal.Decimal) {
	if t.values == nil {
		t.values = make(map[TaxType]decimal.Decimal)
	}
	if _, ok := t.values[tt]; !ok {
		t.order = append(t.order, tt)
	}
	t.values[tt] = v
}

// Add suma v al tributo tt.
func (t *AggregateTotals) Add(tt TaxType, v decimal.Decimal) {
	t.Set(tt, t.Get(tt).Add(v))
}

// Get devuelve el total del tributo (cero si no existe).
func (t *AggregateTotals) Get(tt TaxType) decimal.Decimal {
	if t == nil || t.values == nil {
		return decimal.Zero
	}
	return t.values[tt]
}

// Has indica si el tributo fue registrado.
func (t *AggregateTotals) Has(tt TaxType) bool {
	if t == nil || t.values == nil {
		return false
	}
	_, ok := t.values[tt]
	return ok
}

// Types devuelve los tributos en orden de inserción.
func (t *AggregateTotals) Types() []TaxType {
	if t == nil {
		return nil
	}
	out := make([]TaxType, len(t.order))
	copy(out, t.order)
	return out
}

// Merge suma otros totales a éstos; los tributos nuevos se agregan al final.
func (t *AggregateTotals) Merge(other *AggregateTotals) {
	if other == nil {
		return
	}
	for _, tt := range other.order {
		t.Add(tt, other.values[tt])
	}
}

// Sum total de todos los tributos.
func (t *AggregateTotals) Sum() decimal.Decimal {
	s := decimal.Zero
	if t == nil {
		return s
	}
	for _, tt := range t.order {
		s = s.Add(t.values[tt])
	}
	return s
}

// Map copia a un mapa (para serialización).
func (t *AggregateTotals) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(t.Types()))
	for _, tt := range t.Types() {
		out[string(tt)] = t.values[tt]
	}
	return out
}

// DeclaredTotals valores declarados por el contribuyente.
// Una clave ausente significa "desconocido", nunca cero.
type DeclaredTotals map[TaxType]decimal.Decimal

// Lookup devuelve el valor declarado y si existe.
func (d DeclaredTotals) Lookup(tt TaxType) (decimal.Decimal, bool) {
	if d == nil {
		return decimal.Zero, false
	}
	v, ok := d[tt]
	return v, ok
}
