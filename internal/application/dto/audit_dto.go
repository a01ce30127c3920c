package dto

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/fiscal-validator/internal/application/audit"
	"github.com/jhoicas/fiscal-validator/internal/application/ingest"
)

// AuditRequest nota a validar. Las claves de cada registro se resuelven por sinónimos
// (p. ej. valor_total, vProd o total_value para el valor del ítem).
type AuditRequest = ingest.Payload

// AuditResponse resultado de la validación más los contadores de la ingesta.
type AuditResponse struct {
	Result *audit.Result `json:"result"`
	Ingest ingest.Stats  `json:"ingest"`
}

// ReformRateResponse alícuotas de la reforma para un par NCM/CFOP.
type ReformRateResponse struct {
	NCM         string          `json:"ncm"`
	CFOP        string          `json:"cfop"`
	CBS         decimal.Decimal `json:"cbs_aliquota"`
	IBS         decimal.Decimal `json:"ibs_aliquota"`
	IS          decimal.Decimal `json:"is_aliquota"`
	Source      string          `json:"fonte"`
	Observation string          `json:"observacao,omitempty"`
}

