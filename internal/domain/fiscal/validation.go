package fiscal

import (
	"fmt"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/pkg/taxid"
)

// States las 27 unidades federativas.
var States = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true, "DF": true,
	"ES": true, "GO": true, "MA": true, "MT": true, "MS": true, "MG": true, "PA": true,
	"PB": true, "PR": true, "PE": true, "PI": true, "RJ": true, "RN": true, "RS": true,
	"RO": true, "RR": true, "SC": true, "SP": true, "SE": true, "TO": true,
}

// InvoiceIssues revisa la consistencia de la nota antes de calcular. Ninguna observación
// impide la validación: se informan como advertencias.
func InvoiceIssues(inv *entity.Invoice) []string {
	var issues []string

	if inv.IssuerTaxID != "" {
		if err := taxid.ValidateCNPJ(inv.IssuerTaxID); err != nil {
			issues = append(issues, fmt.Sprintf("emitente: %v", err))
		}
	}
	if uf := NormalizeState(inv.IssuerState); uf != "" && !States[uf] {
		issues = append(issues, fmt.Sprintf("UF do emitente desconhecida: %q", inv.IssuerState))
	}
	if uf := NormalizeState(inv.RecipientState); uf != "" && !States[uf] {
		issues = append(issues, fmt.Sprintf("UF do destinatário desconhecida: %q", inv.RecipientState))
	}

	// Total de la nota coherente con la suma de los ítems.
	items := inv.ItemsTotal()
	if inv.TotalDeclaredValue.IsPositive() && Round2(inv.TotalDeclaredValue.Sub(items)).Abs().GreaterThanOrEqual(Materiality) {
		issues = append(issues, fmt.Sprintf("valor total da nota (%s) difere da soma dos itens (%s)",
			inv.TotalDeclaredValue.StringFixed(2), items.StringFixed(2)))
	}
	return issues
}
