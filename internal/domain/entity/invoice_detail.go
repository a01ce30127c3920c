package entity

import "github.com/shopspring/decimal"

// LineItem representa una línea de la nota fiscal.
// TotalValue es la base de cálculo autoritativa (puede diferir levemente de Quantity * UnitValue).
type LineItem struct {
	Code           string
	Description    string
	ProductCode    string // NCM
	OperationCode  string // CFOP
	ServiceCode    string // subitem LC 116; vacío para mercaderías
	Quantity       decimal.Decimal
	UnitValue      decimal.Decimal
	TotalValue     decimal.Decimal
	NonContributor bool // marcador explícito de destinatario no contribuyente
	Malformed      bool // algún campo numérico no pudo interpretarse y se coercionó a cero
}

// IsService indica si el ítem está clasificado como servicio.
func (it *LineItem) IsService() bool {
	return it.ServiceCode != ""
}
