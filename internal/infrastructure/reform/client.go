// Package reform resuelve las alícuotas CBS/IBS/IS de la reforma tributaria con caché en
// memoria, caché persistente, servicio remoto con reintentos y tabla local de respaldo.
package reform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jhoicas/fiscal-validator/internal/domain"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/metrics"
	"github.com/jhoicas/fiscal-validator/pkg/retry"
)

// Valores por defecto.
const (
	DefaultBaseURL        = "https://api.reformatributaria.gov.br"
	DefaultMemorySize     = 2000
	DefaultTimeout        = 30 * time.Second
	DefaultMaxAttempts    = 3
	throttledBackoffBase  = 2 * time.Second // 429/503: 2^n * 2 s
	transportBackoffBase  = 1 * time.Second // timeout/conexión: 2^n s
	userAgent             = "ValidadorFiscal/2.0"
	maxResponseBodyLength = 1 << 20
)

var errRateNotFound = errors.New("alícuota no encontrada")

// statusError respuesta HTTP no exitosa.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("status HTTP %d", e.code) }

// transportError el intento no obtuvo respuesta (timeout, conexión rechazada, etc.).
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// Config parámetros del cliente.
type Config struct {
	BaseURL     string
	Timeout     time.Duration // por intento
	MaxAttempts int
	MemorySize  int
	RateLimit   float64 // solicitudes por segundo; 0 = sin límite
	Jitter      float64
}

// Stats estadísticas de la caché y del servicio remoto.
type Stats struct {
	MemoryHits    int64 `json:"memoria_hits"`
	MemoryMisses  int64 `json:"memoria_misses"`
	MemoryEntries int   `json:"memoria_entradas"`
	DiskHits      int64 `json:"disco_hits"`
	DiskEntries   int   `json:"entradas_arquivo"`
	DiskBytes     int64 `json:"tamanho_arquivo_bytes"`
	RemoteCalls   int64 `json:"chamadas_remotas"`
	RemoteHits    int64 `json:"remoto_hits"`
	Fallbacks     int64 `json:"fallbacks"`
}

// Client resolvedor de alícuotas de la reforma. Es seguro para uso concurrente y se inyecta
// en cada ejecución del pipeline; no hay estado global.
type Client struct {
	cfg      Config
	http     *http.Client
	memory   *lru.Cache[string, entity.ReformRate]
	disk     DiskStore
	fallback *FallbackTable
	limiter  *rate.Limiter
	policy   retry.Policy
	group    singleflight.Group
	log      zerolog.Logger

	diskMu sync.Mutex

	memoryHits, memoryMisses, diskHits atomic.Int64
	remoteCalls, remoteHits, fallbacks atomic.Int64
}

var _ fiscal.ReformRateResolver = (*Client)(nil)

// Option configura dependencias opcionales del cliente.
type Option func(*Client)

// WithHTTPClient reemplaza el cliente HTTP.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithDiskStore define el segundo nivel de caché (nil = sin persistencia).
func WithDiskStore(s DiskStore) Option { return func(c *Client) { c.disk = s } }

// WithFallback define la tabla local de respaldo.
func WithFallback(f *FallbackTable) Option { return func(c *Client) { c.fallback = f } }

// WithSleeper sustituye la espera entre reintentos (tests).
func WithSleeper(s retry.Sleeper) Option { return func(c *Client) { c.policy.Sleep = s } }

// WithLogger define el logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// NewClient crea el cliente con los valores por defecto para los campos en cero.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultMemorySize
	}
	mem, err := lru.New[string, entity.ReformRate](cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("reform client: caché en memoria: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		http:     &http.Client{},
		memory:   mem,
		fallback: NewFallbackTable(),
		log:      zerolog.Nop(),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      cfg.Jitter,
			Classify:    classify,
		},
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// classify 404 y errores desconocidos son terminales; 429/503 y fallas de transporte se reintentan.
func classify(err error) retry.Decision {
	var se *statusError
	if errors.As(err, &se) {
		if se.code == http.StatusTooManyRequests || se.code == http.StatusServiceUnavailable {
			return retry.After(throttledBackoffBase)
		}
		return retry.Stop
	}
	var te *transportError
	if errors.As(err, &te) {
		return retry.After(transportBackoffBase)
	}
	return retry.Stop
}

// ── Resolución ──

// Resolve devuelve las alícuotas del par (NCM, CFOP). Nunca falla: cualquier problema remoto
// termina en la tabla de respaldo. Todo resultado queda en ambos niveles de caché, incluido el
// respaldo de un código inválido, que se guarda bajo su clave normalizada sin consultar el servicio.
func (c *Client) Resolve(ctx context.Context, productCode, operationCode string) entity.ReformRate {
	ncm, cfop := fiscal.NormalizeNCM(productCode), fiscal.NormalizeCFOP(operationCode)
	key := ncm + "_" + cfop

	if r, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		metrics.ReformLookups.WithLabelValues("memory").Inc()
		return r
	}
	c.memoryMisses.Add(1)

	if !ValidNCM(ncm) || !ValidCFOP(cfop) {
		r := c.useFallback(ncm, cfop)
		c.store(key, r)
		return r
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if r, ok := c.memory.Peek(key); ok {
			return r, nil
		}
		return c.resolveMiss(ctx, key, ncm, cfop), nil
	})
	return v.(entity.ReformRate)
}

func (c *Client) resolveMiss(ctx context.Context, key, ncm, cfop string) entity.ReformRate {
	if c.disk != nil {
		r, ok, err := c.disk.Get(key)
		if err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("caché persistente ilegible")
		}
		if ok {
			c.diskHits.Add(1)
			metrics.ReformLookups.WithLabelValues("disk").Inc()
			c.memory.Add(key, r)
			return r
		}
	}

	r, err := c.fetch(ctx, ncm, cfop)
	switch {
	case err == nil:
		c.remoteHits.Add(1)
		metrics.ReformLookups.WithLabelValues("remote").Inc()
	case errors.Is(err, errRateNotFound):
		c.log.Debug().Str("key", key).Msg("alícuota no encontrada en el servicio remoto, se usa la tabla local")
		r = c.useFallback(ncm, cfop)
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("servicio de alícuotas no disponible, se usa la tabla local")
		r = c.useFallback(ncm, cfop)
	}

	c.store(key, r)
	return r
}

func (c *Client) useFallback(ncm, cfop string) entity.ReformRate {
	c.fallbacks.Add(1)
	metrics.ReformLookups.WithLabelValues("fallback").Inc()
	return c.fallback.Lookup(ncm, cfop)
}

func (c *Client) store(key string, r entity.ReformRate) {
	c.memory.Add(key, r)
	if c.disk == nil {
		return
	}
	c.diskMu.Lock()
	defer c.diskMu.Unlock()
	if err := c.disk.Put(key, r); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("no se pudo persistir la caché de alícuotas")
	}
}

// ── Servicio remoto ──

type remoteResponse struct {
	CBS         json.RawMessage `json:"cbs_aliquota"`
	IBS         json.RawMessage `json:"ibs_aliquota"`
	IS          json.RawMessage `json:"is_aliquota"`
	Observation string          `json:"observacao"`
}

// fetch consulta GET {base}/v1/aliquotas/{ncm}/{cfop} bajo la política de reintentos.
// Devuelve errRateNotFound (404) o un error envuelto en domain.ErrRemoteResolutionFailed.
func (c *Client) fetch(ctx context.Context, ncm, cfop string) (entity.ReformRate, error) {
	url := fmt.Sprintf("%s/v1/aliquotas/%s/%s", c.cfg.BaseURL, ncm, cfop)

	var out entity.ReformRate
	res, err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		c.remoteCalls.Add(1)
		r, err := c.attempt(ctx, url)
		switch {
		case err == nil:
			metrics.ReformRemoteAttempts.WithLabelValues("ok").Inc()
			out = r
		case errors.Is(err, errRateNotFound):
			metrics.ReformRemoteAttempts.WithLabelValues("not_found").Inc()
		case classify(err).Retry:
			metrics.ReformRemoteAttempts.WithLabelValues("retry").Inc()
			c.log.Debug().Err(err).Int("attempt", attempt+1).Str("url", url).Msg("reintento de alícuota remota")
		default:
			metrics.ReformRemoteAttempts.WithLabelValues("error").Inc()
		}
		return err
	})
	if err == nil {
		return out, nil
	}
	if errors.Is(err, errRateNotFound) {
		return entity.ReformRate{}, err
	}
	return entity.ReformRate{}, fmt.Errorf("%w: %s tras %d intento(s): %v", domain.ErrRemoteResolutionFailed, url, res.Attempts, err)
}

func (c *Client) attempt(ctx context.Context, url string) (entity.ReformRate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return entity.ReformRate{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return entity.ReformRate{}, &transportError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return entity.ReformRate{}, errRateNotFound
	case resp.StatusCode != http.StatusOK:
		return entity.ReformRate{}, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLength))
	if err != nil {
		return entity.ReformRate{}, &transportError{err: err}
	}
	return decodeRate(body)
}

func decodeRate(body []byte) (entity.ReformRate, error) {
	var rr remoteResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return entity.ReformRate{}, fmt.Errorf("respuesta inválida: %w", err)
	}
	out := entity.ReformRate{Source: entity.ReformSourceRemote, Observation: rr.Observation}
	for _, f := range []struct {
		raw json.RawMessage
		dst *decimal.Decimal
	}{{rr.CBS, &out.CBS}, {rr.IBS, &out.IBS}, {rr.IS, &out.IS}} {
		if len(f.raw) == 0 || string(f.raw) == "null" {
			continue
		}
		v, ok := fiscal.NormalizeRate(strings.Trim(string(f.raw), `"`))
		if !ok {
			return entity.ReformRate{}, fmt.Errorf("respuesta inválida: alícuota %s", f.raw)
		}
		*f.dst = v
	}
	return out, nil
}

// ── Administración ──

// Clear vacía ambos niveles de caché y reinicia las estadísticas. Es la única vía de expiración.
func (c *Client) Clear() error {
	c.memory.Purge()
	for _, n := range []*atomic.Int64{&c.memoryHits, &c.memoryMisses, &c.diskHits, &c.remoteCalls, &c.remoteHits, &c.fallbacks} {
		n.Store(0)
	}
	if c.disk == nil {
		return nil
	}
	c.diskMu.Lock()
	defer c.diskMu.Unlock()
	return c.disk.Clear()
}

// Stats estadísticas actuales.
func (c *Client) Stats() Stats {
	s := Stats{
		MemoryHits:    c.memoryHits.Load(),
		MemoryMisses:  c.memoryMisses.Load(),
		MemoryEntries: c.memory.Len(),
		DiskHits:      c.diskHits.Load(),
		RemoteCalls:   c.remoteCalls.Load(),
		RemoteHits:    c.remoteHits.Load(),
		Fallbacks:     c.fallbacks.Load(),
	}
	if c.disk != nil {
		s.DiskEntries = c.disk.Len()
		s.DiskBytes = c.disk.Size()
	}
	return s
}

// Close libera el almacenamiento persistente.
func (c *Client) Close() error {
	if c.disk == nil {
		return nil
	}
	return c.disk.Close()
}

// ── Validación ──

// ValidNCM NCM de 8 dígitos.
func ValidNCM(ncm string) bool { return len(ncm) == 8 && allDigits(ncm) }

// ValidCFOP CFOP de 4 dígitos.
func ValidCFOP(cfop string) bool { return len(cfop) == 4 && allDigits(cfop) }

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
