// Package retry implementa una política de reintentos con backoff exponencial reutilizable
// por cualquier llamada externa, sobre cenkalti/backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts intentos cuando la política no indica otro valor.
const DefaultMaxAttempts = 3

// Decision clasificación de un error devuelto por un intento.
type Decision struct {
	// Retry indica si vale la pena otro intento.
	Retry bool
	// Base es la espera base; la espera real es Base * 2^intento (intento base 0).
	Base time.Duration
}

// Stop decisión terminal.
var Stop = Decision{}

// After decisión de reintentar con la base indicada.
func After(base time.Duration) Decision {
	return Decision{Retry: true, Base: base}
}

// Sleeper espera d o hasta que ctx termine.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy parámetros de reintento de un punto de llamada.
type Policy struct {
	// MaxAttempts cantidad máxima de intentos, incluido el primero. Default: 3.
	MaxAttempts int
	// Jitter fracción máxima (0-1) de variación aleatoria de cada espera.
	Jitter float64
	// Classify decide si un error se reintenta y con qué base. nil = nunca reintentar.
	Classify func(err error) Decision
	// Sleep permite sustituir la espera en tests. nil = temporizador de backoff.
	Sleep Sleeper
}

// Result estadísticas de una ejecución.
type Result struct {
	Attempts int
	Delays   []time.Duration
}

// Do ejecuta fn hasta que tenga éxito, el error no sea reintentable o se agoten los intentos.
// No espera después del último intento. Devuelve el último error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (Result, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var (
		res      Result
		sleepErr error
		timer    backoff.Timer
	)
	sched := &schedule{jitter: p.Jitter}
	if p.Sleep != nil {
		timer = &sleeperTimer{ctx: ctx, sleep: p.Sleep, err: &sleepErr}
	}

	op := func() error {
		if sleepErr != nil {
			return backoff.Permanent(sleepErr)
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt := res.Attempts
		res.Attempts++

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Classify == nil {
			return backoff.Permanent(err)
		}
		d := p.Classify(err)
		if !d.Retry {
			return backoff.Permanent(err)
		}
		sched.attempt, sched.base = attempt, d.Base
		return err
	}
	notify := func(_ error, wait time.Duration) {
		res.Delays = append(res.Delays, wait)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(sched, uint64(attempts-1)), ctx)
	err := backoff.RetryNotifyWithTimer(op, b, notify, timer)
	return res, err
}

// schedule espera del próximo intento según la última decisión: base * 2^intento.
type schedule struct {
	attempt int
	base    time.Duration
	jitter  float64
}

func (s *schedule) NextBackOff() time.Duration {
	return Backoff(s.base, s.attempt, s.jitter)
}

func (s *schedule) Reset() {
	s.attempt, s.base = 0, 0
}

// Backoff base * 2^attempt, con jitter opcional en [1-j, 1+j].
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	d := base << uint(attempt)
	if jitter <= 0 || d <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     d,
		RandomizationFactor: jitter,
		Multiplier:          1,
		MaxInterval:         2 * d,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	return eb.NextBackOff()
}

// sleeperTimer adapta un Sleeper al temporizador de backoff. Si la espera falla el error
// queda en err y el siguiente intento lo devuelve como terminal.
type sleeperTimer struct {
	ctx   context.Context
	sleep Sleeper
	err   *error
	c     chan time.Time
}

func (t *sleeperTimer) Start(d time.Duration) {
	if t.c == nil {
		t.c = make(chan time.Time, 1)
	}
	if err := t.sleep(t.ctx, d); err != nil {
		*t.err = err
	}
	t.c <- time.Now()
}

func (t *sleeperTimer) Stop() {}

func (t *sleeperTimer) C() <-chan time.Time { return t.c }
