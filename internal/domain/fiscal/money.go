package fiscal

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	// Materiality umbral mínimo (un centavo) para registrar una divergencia.
	Materiality = decimal.New(1, -2)
)

// Round2 redondea a dos decimales, mitad lejos de cero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NormalizeRate interpreta una alícuota leída de una tabla.
// Acepta coma decimal y sufijo "%"; un valor mayor a 1 se asume porcentaje y se divide entre 100.
// Devuelve false si el texto no es numérico o el resultado queda fuera de [0, 1].
func NormalizeRate(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return NormalizeRateValue(d)
}

// NormalizeRateValue aplica la misma regla de porcentaje a un valor ya numérico.
func NormalizeRateValue(d decimal.Decimal) (decimal.Decimal, bool) {
	if d.IsNegative() {
		return decimal.Zero, false
	}
	if d.GreaterThan(one) {
		d = d.Div(hundred)
	}
	if d.GreaterThan(one) {
		return decimal.Zero, false
	}
	return d, true
}

// ParseAmount interpreta un valor monetario con coma o punto decimal.
// Con ambos separadores presentes, el último es el decimal ("1.234,56" y "1,234.56").
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Zero, false
	}
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ── Códigos ──

// NormalizeNCM deja sólo dígitos y completa con ceros a la izquierda hasta 8.
func NormalizeNCM(code string) string {
	return padDigits(code, 8)
}

// NormalizeCFOP deja sólo dígitos y completa con ceros a la izquierda hasta 4.
func NormalizeCFOP(code string) string {
	return padDigits(code, 4)
}

// ReformKey clave de caché de alícuotas de la reforma: "<ncm>_<cfop>".
func ReformKey(ncm, cfop string) string {
	return NormalizeNCM(ncm) + "_" + NormalizeCFOP(cfop)
}

// NormalizeState UF en mayúsculas sin espacios.
func NormalizeState(uf string) string {
	return strings.ToUpper(strings.TrimSpace(uf))
}

func padDigits(code string, width int) string {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	return digits
}
