package entity

import "time"

// Stage etapa del pipeline de validación.
type Stage string

// Etapas en orden; FAILED es terminal y alcanzable desde cualquiera.
const (
	StageLoadingRates    Stage = "LOADING_RATES"
	StageComputingLegacy Stage = "COMPUTING_LEGACY"
	StageResolvingReform Stage = "RESOLVING_REFORM"
	StageReconciling     Stage = "RECONCILING"
	StageConsolidating   Stage = "CONSOLIDATING"
	StageDone            Stage = "DONE"
	StageFailed          Stage = "FAILED"
)

// StageStatus estado de un evento de progreso.
type StageStatus string

const (
	StatusStart   StageStatus = "start"
	StatusRunning StageStatus = "running"
	StatusOK      StageStatus = "ok"
	StatusError   StageStatus = "error"
)

// ProgressEvent evento emitido en cada transición de etapa. La secuencia completa
// forma el stage trace de la ejecución (también sirve como log de auditoría).
type ProgressEvent struct {
	Stage     Stage       `json:"stage"`
	Status    StageStatus `json:"status"`
	Percent   int         `json:"percent_complete"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Diagnostic registro de falla de una etapa.
type Diagnostic struct {
	Stage     Stage     `json:"stage"`
	Error     string    `json:"error"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
