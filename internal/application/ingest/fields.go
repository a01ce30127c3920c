// Package ingest convierte registros con nombres de columna variables en la nota canónica.
// Cada campo tiene una lista ordenada de sinónimos que se resuelve una sola vez por registro.
package ingest

import "github.com/jhoicas/fiscal-validator/internal/domain/entity"

// ── Ítems ──

var (
	itemCode        = []string{"codigo", "cod", "code", "item", "cprod"}
	itemDescription = []string{"descricao", "description", "xprod"}
	itemNCM         = []string{"ncm", "product_code", "cod_ncm"}
	itemCFOP        = []string{"cfop", "operation_code"}
	itemService     = []string{"subitem_lc116", "service_code", "cod_servico", "clistserv"}
	itemQuantity    = []string{"quantidade", "qtd", "quantity", "qcom"}
	itemUnitValue   = []string{"valor_unitario", "vl_unit", "unit_value", "vuncom"}
	itemTotalValue  = []string{"valor_total", "vl_total", "vprod", "total_value"}
	// Marcador explícito de destinatario no contribuyente: booleano, o indIEDest = 9 de la NF-e.
	itemNonContributor = []string{"nao_contribuinte", "non_contributor"}
	itemIndicator      = []string{"indiedest"}
)

// ── Cabecera ──

var (
	headerID             = []string{"id", "chave", "access_key"}
	headerNumber         = []string{"numero", "nnf", "number"}
	headerSeries         = []string{"serie", "series"}
	headerIssuerTaxID    = []string{"emitente_cnpj", "cnpj_emitente", "issuer_tax_id"}
	headerIssuerName     = []string{"emitente_nome", "issuer_name"}
	headerIssuerState    = []string{"emissor_uf", "uf_emitente", "emitente_uf", "issuer_state"}
	headerRecipientTaxID = []string{"destinatario_cnpj", "destinatario_cpf", "recipient_tax_id"}
	headerRecipientName  = []string{"destinatario_nome", "recipient_name"}
	headerRecipientState = []string{"destinatario_uf", "uf_destinatario", "recipient_state"}
	headerIssueDate      = []string{"data_emissao", "dhemi", "issue_date"}
	headerTotal          = []string{"total_nf", "vnf", "total_declared_value"}
)

// declaredFields sinónimos de los valores declarados por tributo (cabecera o primera fila).
var declaredFields = []struct {
	tax      entity.TaxType
	synonyms []string
}{
	{entity.TaxICMS, []string{"vicms", "icms_declarado"}},
	{entity.TaxST, []string{"vst", "vicmsst", "st_declarado"}},
	{entity.TaxDIFAL, []string{"vdifal", "vicmsufdest", "difal_declarado"}},
	{entity.TaxIPI, []string{"vipi", "ipi_declarado"}},
	{entity.TaxPIS, []string{"vpis", "pis_declarado"}},
	{entity.TaxCOFINS, []string{"vcofins", "cofins_declarado"}},
	{entity.TaxISS, []string{"viss", "iss_declarado"}},
	{entity.TaxIRPJ, []string{"virpj", "irpj_declarado"}},
	{entity.TaxCSLL, []string{"vcsll", "csll_declarado"}},
	{entity.TaxCBS, []string{"vcbs", "cbs_declarado"}},
	{entity.TaxIBS, []string{"vibs", "ibs_declarado"}},
	{entity.TaxIS, []string{"vis", "is_declarado"}},
}
