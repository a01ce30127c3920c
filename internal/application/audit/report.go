package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

// DefaultLineDetailLimit máximo de ítems detallados en el reporte.
const DefaultLineDetailLimit = 1000

// RiskLevel nivel de riesgo de la nota.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "ALTO"
	RiskMedium RiskLevel = "MÉDIO"
	RiskLow    RiskLevel = "BAIXO"
)

// AlertLevel severidad de una alerta.
type AlertLevel string

const (
	AlertCritical AlertLevel = "CRÍTICO"
	AlertWarning  AlertLevel = "ATENÇÃO"
)

// Umbrales del resumen ejecutivo.
var (
	highRiskAmount   = decimal.NewFromInt(5000)
	highRiskPercent  = decimal.NewFromInt(15)
	mediumRiskAmount = decimal.NewFromInt(1000)
	mediumRiskPct    = decimal.NewFromInt(5)
	alertThreshold   = decimal.NewFromInt(100)
	criticalAlert    = decimal.NewFromInt(1000)
	hundred          = decimal.NewFromInt(100)
)

const maxAlerts = 10

// Report reporte consolidado.
type Report struct {
	Summary        ExecutiveSummary           `json:"resumo_executivo"`
	Totals         map[string]decimal.Decimal `json:"totais"`
	Comparison     []TaxComparison            `json:"comparativo"`
	Alerts         []Alert                    `json:"alertas"`
	Suggestions    []string                   `json:"sugestoes"`
	Text           string                     `json:"texto"`
	Items          []ItemDetail               `json:"itens"`
	ItemsTruncated bool                       `json:"itens_truncados"`
	GeneratedAt    time.Time                  `json:"gerado_em"`
}

// ExecutiveSummary totales comparados sólo sobre los tributos legados presentes en lo declarado.
type ExecutiveSummary struct {
	Items             int             `json:"itens"`
	TotalComputed     decimal.Decimal `json:"total_calculado"`
	TotalDeclared     decimal.Decimal `json:"total_declarado"`
	Divergence        decimal.Decimal `json:"divergencia"`
	DivergencePercent decimal.Decimal `json:"divergencia_percentual"`
	TotalAllTaxes     decimal.Decimal `json:"total_todos_tributos"`
	Risk              RiskLevel       `json:"nivel_risco"`
}

// TaxComparison fila del comparativo por tributo.
type TaxComparison struct {
	TaxType           entity.TaxType   `json:"tributo"`
	Computed          decimal.Decimal  `json:"calculado"`
	Declared          *decimal.Decimal `json:"declarado,omitempty"`
	Difference        decimal.Decimal  `json:"diferenca"`
	DifferencePercent decimal.Decimal  `json:"diferenca_percentual"`
}

// Alert divergencia relevante.
type Alert struct {
	Level      AlertLevel      `json:"nivel"`
	TaxType    entity.TaxType  `json:"tributo"`
	Difference decimal.Decimal `json:"diferenca"`
	Message    string          `json:"mensagem"`
}

// ItemDetail detalle de un ítem con sus tributos.
type ItemDetail struct {
	Index       int                        `json:"indice"`
	Code        string                     `json:"codigo,omitempty"`
	Description string                     `json:"descricao,omitempty"`
	NCM         string                     `json:"ncm,omitempty"`
	CFOP        string                     `json:"cfop,omitempty"`
	Value       decimal.Decimal            `json:"valor"`
	Taxes       map[string]decimal.Decimal `json:"tributos"`
}

// BuildReport arma el reporte a partir de los totales y las divergencias.
func BuildReport(inv *entity.Invoice, totals *entity.AggregateTotals, divs []entity.Divergence, lines []entity.ComputedTaxLine, limit int) *Report {
	rep := &Report{
		Totals:     totals.Map(),
		Comparison: compare(totals, inv.Declared),
		Alerts:     alerts(divs),
	}
	rep.Summary = summarize(inv, totals)
	rep.Suggestions = suggestions(rep.Summary, divs)
	rep.Items, rep.ItemsTruncated = sampleItems(inv.Items, lines, limit)
	rep.Text = summaryText(rep.Summary, len(divs))
	return rep
}

func summarize(inv *entity.Invoice, totals *entity.AggregateTotals) ExecutiveSummary {
	s := ExecutiveSummary{
		Items:         len(inv.Items),
		TotalComputed: decimal.Zero,
		TotalDeclared: decimal.Zero,
		TotalAllTaxes: fiscal.Round2(totals.Sum()),
	}
	anyDeclared := false
	for _, tt := range entity.LegacyTaxes {
		d, ok := inv.Declared.Lookup(tt)
		if !ok {
			continue
		}
		anyDeclared = true
		s.TotalDeclared = s.TotalDeclared.Add(d)
		s.TotalComputed = s.TotalComputed.Add(totals.Get(tt))
	}
	s.TotalComputed = fiscal.Round2(s.TotalComputed)
	s.TotalDeclared = fiscal.Round2(s.TotalDeclared)
	s.Divergence = s.TotalComputed.Sub(s.TotalDeclared)
	s.DivergencePercent = pct(s.Divergence, s.TotalDeclared)
	s.Risk = risk(anyDeclared, s.Divergence.Abs(), s.DivergencePercent)
	return s
}

func risk(anyDeclared bool, abs, percent decimal.Decimal) RiskLevel {
	switch {
	case !anyDeclared:
		return RiskLow
	case abs.GreaterThan(highRiskAmount) || percent.GreaterThan(highRiskPercent):
		return RiskHigh
	case abs.GreaterThan(mediumRiskAmount) || percent.GreaterThan(mediumRiskPct):
		return RiskMedium
	default:
		return RiskLow
	}
}

// pct |diff| / base × 100 con dos decimales; cero si no hay base.
func pct(diff, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return diff.Abs().Div(base).Mul(hundred).Round(2)
}

func compare(totals *entity.AggregateTotals, declared entity.DeclaredTotals) []TaxComparison {
	out := make([]TaxComparison, 0, len(totals.Types()))
	for _, tt := range totals.Types() {
		row := TaxComparison{TaxType: tt, Computed: fiscal.Round2(totals.Get(tt)), Difference: decimal.Zero, DifferencePercent: decimal.Zero}
		if d, ok := declared.Lookup(tt); ok {
			d = fiscal.Round2(d)
			row.Declared = &d
			row.Difference = row.Computed.Sub(d)
			row.DifferencePercent = pct(row.Difference, d)
		}
		out = append(out, row)
	}
	return out
}

func alerts(divs []entity.Divergence) []Alert {
	out := []Alert{}
	for _, d := range divs {
		if len(out) == maxAlerts {
			break
		}
		abs := d.Difference.Abs()
		if !abs.GreaterThan(alertThreshold) {
			continue
		}
		level := AlertWarning
		if abs.GreaterThan(criticalAlert) {
			level = AlertCritical
		}
		out = append(out, Alert{
			Level:      level,
			TaxType:    d.TaxType,
			Difference: d.Difference,
			Message: fmt.Sprintf("%s: calculado R$ %s, declarado R$ %s (diferença R$ %s)",
				d.TaxType.Upper(), d.Computed.StringFixed(2), d.Declared.StringFixed(2), d.Difference.StringFixed(2)),
		})
	}
	return out
}

func suggestions(s ExecutiveSummary, divs []entity.Divergence) []string {
	out := []string{}
	switch s.Risk {
	case RiskHigh:
		out = append(out, "Revisar a nota antes da escrituração: divergência relevante entre valores calculados e declarados.")
	case RiskMedium:
		out = append(out, "Conferir as alíquotas aplicadas aos tributos com divergência.")
	}
	for _, d := range divs {
		switch d.TaxType {
		case entity.TaxST:
			out = append(out, "Verificar MVA e protocolos de substituição tributária entre as UFs.")
		case entity.TaxDIFAL:
			out = append(out, "Confirmar o destinatário como contribuinte e a alíquota interna da UF de destino.")
		case entity.TaxISS:
			out = append(out, "Validar o subitem da LC 116 e a alíquota municipal do ISS.")
		}
	}
	if len(divs) == 0 {
		out = append(out, "Nenhuma divergência material encontrada.")
	}
	return out
}

func summaryText(s ExecutiveSummary, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nota com %d item(ns). ", s.Items)
	fmt.Fprintf(&b, "Total calculado R$ %s, total declarado R$ %s. ", s.TotalComputed.StringFixed(2), s.TotalDeclared.StringFixed(2))
	fmt.Fprintf(&b, "Divergência R$ %s (%s%%) em %d tributo(s). ", s.Divergence.StringFixed(2), s.DivergencePercent.StringFixed(2), n)
	fmt.Fprintf(&b, "Nível de risco: %s.", s.Risk)
	return b.String()
}

// sampleItems detalla hasta limit ítems: todos si caben, si no la primera y la última mitad.
func sampleItems(items []entity.LineItem, lines []entity.ComputedTaxLine, limit int) ([]ItemDetail, bool) {
	n := len(items)
	if limit <= 0 {
		limit = DefaultLineDetailLimit
	}
	idx := make([]int, 0, min(n, limit))
	truncated := n > limit
	if !truncated {
		for i := 0; i < n; i++ {
			idx = append(idx, i)
		}
	} else {
		head := limit / 2
		for i := 0; i < head; i++ {
			idx = append(idx, i)
		}
		for i := n - (limit - head); i < n; i++ {
			idx = append(idx, i)
		}
	}

	pos := make(map[int]int, len(idx))
	out := make([]ItemDetail, len(idx))
	for k, i := range idx {
		it := items[i]
		pos[i] = k
		out[k] = ItemDetail{
			Index: i, Code: it.Code, Description: it.Description,
			NCM: it.ProductCode, CFOP: it.OperationCode, Value: it.TotalValue,
			Taxes: map[string]decimal.Decimal{},
		}
	}
	for _, l := range lines {
		if k, ok := pos[l.ItemIndex]; ok {
			out[k].Taxes[string(l.TaxType)] = l.Value
		}
	}
	return out, truncated
}
