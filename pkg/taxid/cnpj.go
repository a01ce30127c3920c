package taxid

import (
	"fmt"
	"unicode"
)

// pesos del módulo 11 para los dos dígitos verificadores del CNPJ, de izquierda a derecha.
var (
	cnpjWeights1 = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateCNPJ valida que el CNPJ (con o sin puntos, barra y guion) tenga 14 dígitos y
// dígitos verificadores correctos.
// taxID puede ser "11.222.333/0001-81" o "11222333000181".
func ValidateCNPJ(taxID string) error {
	digits := extractDigits(taxID)
	if len(digits) != 14 {
		return fmt.Errorf("taxid: CNPJ debe tener 14 dígitos, se encontraron %d", len(digits))
	}
	if allEqual(digits) {
		return fmt.Errorf("taxid: CNPJ con dígitos repetidos")
	}
	d1, d2, err := ComputeCNPJCheckDigits(string(digits[:12]))
	if err != nil {
		return err
	}
	if digits[12] != d1 || digits[13] != d2 {
		return fmt.Errorf("taxid: dígitos verificadores del CNPJ inválidos: esperado %c%c, recibido %c%c", d1, d2, digits[12], digits[13])
	}
	return nil
}

// ComputeCNPJCheckDigits calcula los dos dígitos verificadores para los 12 primeros dígitos.
func ComputeCNPJCheckDigits(base string) (byte, byte, error) {
	digits := extractDigits(base)
	if len(digits) < 12 {
		return 0, 0, fmt.Errorf("taxid: se requieren 12 dígitos para calcular los verificadores, se encontraron %d", len(digits))
	}
	digits = digits[:12]
	d1 := checkDigit(digits, cnpjWeights1[:])
	d2 := checkDigit(append(append([]byte{}, digits...), d1), cnpjWeights2[:])
	return d1, d2, nil
}

func checkDigit(digits []byte, weights []int) byte {
	var sum int
	for i, d := range digits {
		sum += int(d-'0') * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + (11 - r))
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}

func allEqual(d []byte) bool {
	for _, c := range d[1:] {
		if c != d[0] {
			return false
		}
	}
	return true
}
