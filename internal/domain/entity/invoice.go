package entity

import "github.com/shopspring/decimal"

// Invoice representa la nota fiscal estructurada que consume el motor.
// Se construye una vez en la ingesta y es inmutable durante la ejecución del pipeline.
type Invoice struct {
	ID                 string
	Number             string
	Series             string
	IssuerTaxID        string // CNPJ del emisor
	IssuerName         string
	IssuerState        string // UF del emisor
	RecipientTaxID     string
	RecipientName      string
	RecipientState     string // UF del destinatario
	IssueDate          string
	TotalDeclaredValue decimal.Decimal
	Items              []LineItem
	Declared           DeclaredTotals
}

// NonContributor indica si la nota lleva el marcador de destinatario no contribuyente
// en alguno de sus ítems. En ese caso el ICMS se fuerza a cero.
func (inv *Invoice) NonContributor() bool {
	for i := range inv.Items {
		if inv.Items[i].NonContributor {
			return true
		}
	}
	return false
}

// HasServiceItems indica si algún ítem con valor positivo tiene código de servicio (LC 116).
// Una nota mixta anula el IPI de todos los ítems.
func (inv *Invoice) HasServiceItems() bool {
	for i := range inv.Items {
		it := &inv.Items[i]
		if it.IsService() && it.TotalValue.IsPositive() {
			return true
		}
	}
	return false
}

// ItemsTotal suma el valor total de los ítems con valor positivo.
func (inv *Invoice) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range inv.Items {
		if inv.Items[i].TotalValue.IsPositive() {
			total = total.Add(inv.Items[i].TotalValue)
		}
	}
	return total
}
