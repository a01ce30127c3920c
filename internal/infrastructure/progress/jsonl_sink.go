// Package progress persiste los eventos de progreso como JSON Lines.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
)

// JSONLSink escribe un objeto JSON por evento. Implementa audit.ProgressSink.
type JSONLSink struct {
	mu     sync.Mutex
	log    zerolog.Logger
	closer io.Closer
}

// NewJSONLSink escribe sobre w (no lo cierra).
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{log: zerolog.New(w)}
}

// OpenJSONLFile abre (en modo append) el archivo de progreso, creando el directorio.
func OpenJSONLFile(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("progress: crear directorio: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("progress: abrir %s: %w", path, err)
	}
	s := NewJSONLSink(f)
	s.closer = f
	return s, nil
}

func (s *JSONLSink) Emit(ev entity.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.log.Log().
		Str("stage", string(ev.Stage)).
		Str("status", string(ev.Status)).
		Int("percent_complete", ev.Percent).
		Time("timestamp", ev.Timestamp)
	if ev.Message != "" {
		e = e.Str("message", ev.Message)
	}
	e.Send()
}

// Close cierra el archivo si fue abierto por OpenJSONLFile.
func (s *JSONLSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
