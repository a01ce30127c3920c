package reform

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
)

// DiskStore caché persistente de alícuotas de la reforma (segundo nivel).
// Las implementaciones deben ser seguras para uso concurrente dentro del proceso.
type DiskStore interface {
	Get(key string) (entity.ReformRate, bool, error)
	Put(key string, rate entity.ReformRate) error
	Len() int
	Size() int64 // bytes ocupados en disco
	Clear() error
	Close() error
}

// ── JSON ──

// JSONStore snapshot en un archivo JSON {clave: alícuotas}, cargado una vez al abrir y
// reescrito de forma atómica (archivo temporal + rename) en cada Put.
type JSONStore struct {
	mu      sync.RWMutex
	path    string
	entries map[string]entity.ReformRate
}

var _ DiskStore = (*JSONStore)(nil)

// OpenJSONStore abre (o crea vacío) el snapshot. Un archivo ilegible se descarta y se empieza vacío.
func OpenJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{path: path, entries: map[string]entity.ReformRate{}}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reform cache: leer %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.entries); err != nil {
			s.entries = map[string]entity.ReformRate{}
			return s, fmt.Errorf("reform cache: snapshot inválido %s: %w", path, err)
		}
	}
	return s, nil
}

// Get devuelve la entrada persistida.
func (s *JSONStore) Get(key string) (entity.ReformRate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[key]
	return r, ok, nil
}

// Put agrega la entrada y reescribe el snapshot.
func (s *JSONStore) Put(key string, rate entity.ReformRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = rate
	return s.flushLocked()
}

// Len cantidad de entradas.
func (s *JSONStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear vacía el snapshot y elimina el archivo.
func (s *JSONStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]entity.ReformRate{}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reform cache: eliminar %s: %w", s.path, err)
	}
	return nil
}

// Close no mantiene recursos abiertos.
func (s *JSONStore) Close() error { return nil }

// Size tamaño del archivo en bytes (0 si no existe).
func (s *JSONStore) Size() int64 {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (s *JSONStore) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("reform cache: crear directorio: %w", err)
	}
	raw, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("reform cache: serializar: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cbs_cache-*.json")
	if err != nil {
		return fmt.Errorf("reform cache: archivo temporal: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("reform cache: escribir: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("reform cache: cerrar: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("reform cache: reemplazar %s: %w", s.path, err)
	}
	return nil
}

// ── Badger ──

// BadgerStore caché persistente sobre BadgerDB; cada entrada es un valor JSON bajo su clave.
type BadgerStore struct {
	db *badger.DB
}

var _ DiskStore = (*BadgerStore)(nil)

// OpenBadgerStore abre (o crea) la base en el directorio indicado.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("reform cache: abrir badger %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get lee la entrada.
func (s *BadgerStore) Get(key string) (entity.ReformRate, bool, error) {
	var r entity.ReformRate
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entity.ReformRate{}, false, nil
	}
	if err != nil {
		return entity.ReformRate{}, false, fmt.Errorf("reform cache: leer %s: %w", key, err)
	}
	return r, true, nil
}

// Put escribe la entrada.
func (s *BadgerStore) Put(key string, rate entity.ReformRate) error {
	val, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("reform cache: serializar: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// Len cuenta las claves.
func (s *BadgerStore) Len() int {
	n := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// Size tamaño del LSM más el value log, según la última medición de badger.
func (s *BadgerStore) Size() int64 {
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

// Clear elimina todas las claves.
func (s *BadgerStore) Clear() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("reform cache: vaciar badger: %w", err)
	}
	return nil
}

// Close cierra la base.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// OpenStore abre el backend configurado: "badger" o "json" (default).
func OpenStore(backend, path string) (DiskStore, error) {
	switch backend {
	case "badger":
		s, err := OpenBadgerStore(path)
		if s == nil {
			return nil, err
		}
		return s, nil
	case "", "json":
		// Un snapshot inválido devuelve el store vacío junto con el error.
		s, err := OpenJSONStore(path)
		if s == nil {
			return nil, err
		}
		return s, err
	default:
		return nil, fmt.Errorf("reform cache: backend desconocido %q", backend)
	}
}
