package audit

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
)

// MemoryTrace acumula los eventos en memoria.
type MemoryTrace struct {
	mu     sync.Mutex
	events []entity.ProgressEvent
}

// NewMemoryTrace traza vacía.
func NewMemoryTrace() *MemoryTrace { return &MemoryTrace{} }

// Emit agrega el evento; seguro para uso concurrente.
func (m *MemoryTrace) Emit(ev entity.ProgressEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

// Events copia de los eventos recibidos.
func (m *MemoryTrace) Events() []entity.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.ProgressEvent, len(m.events))
	copy(out, m.events)
	return out
}

// LogSink escribe cada evento como un log estructurado.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink sink sobre el logger indicado.
func NewLogSink(log zerolog.Logger) *LogSink { return &LogSink{log: log} }

// Emit registra errores en Error, avances intermedios en Debug y el resto en Info.
func (s *LogSink) Emit(ev entity.ProgressEvent) {
	e := s.log.Info()
	switch ev.Status {
	case entity.StatusError:
		e = s.log.Error()
	case entity.StatusRunning:
		e = s.log.Debug()
	}
	e.Str("stage", string(ev.Stage)).
		Str("status", string(ev.Status)).
		Int("percent_complete", ev.Percent).
		Str("message", ev.Message).
		Msg("progreso")
}

// SinkFunc adapta una función a ProgressSink.
type SinkFunc func(entity.ProgressEvent)

// Emit invoca f.
func (f SinkFunc) Emit(ev entity.ProgressEvent) { f(ev) }
