package tenantconfig

import (
	"context"
	"errors"
	"sync"

	"github.com/dropDatabas3/uaagate/internal/metrics"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
)

// ErrIgnored lo devuelve un listener que decidió no aplicar un push (p.ej. payload sin
// entradas válidas). No es una falla: la config previa sigue activa.
var ErrIgnored = errors.New("push ignored")

// Listener consume pushes de configuración cuyo path le interesa.
type Listener interface {
	// Name identifica al listener en logs y métricas ("idp", "props").
	Name() string
	IsListening(path string) bool
	OnRefresh(ctx context.Context, path string, raw []byte) error
}

// Dispatcher rutea cada push a todos los listeners que lo escuchan, en orden de registro.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewDispatcher(ls ...Listener) *Dispatcher {
	d := &Dispatcher{}
	for _, l := range ls {
		d.Register(l)
	}
	return d
}

func (d *Dispatcher) Register(l Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// Push entrega raw a los listeners interesados y devuelve cuántos lo aceptaron.
// Los errores se loguean; un listener fallido no impide que los demás reciban el push.
func (d *Dispatcher) Push(ctx context.Context, path string, raw []byte) int {
	log := logger.From(ctx).With(
		logger.Layer("tenantconfig"),
		logger.Component("dispatcher"),
		logger.ConfigPath(path),
	)

	d.mu.RLock()
	ls := make([]Listener, len(d.listeners))
	copy(ls, d.listeners)
	d.mu.RUnlock()

	applied := 0
	for _, l := range ls {
		if !l.IsListening(path) {
			continue
		}
		err := l.OnRefresh(ctx, path, raw)
		switch {
		case err == nil:
			applied++
			metrics.TenantConfigPushTotal.WithLabelValues(l.Name(), metrics.OutcomeOK).Inc()
			log.Debug("push applied", logger.String("listener", l.Name()))
		case errors.Is(err, ErrIgnored):
			metrics.TenantConfigPushTotal.WithLabelValues(l.Name(), metrics.OutcomeIgnored).Inc()
			log.Warn("push ignored", logger.String("listener", l.Name()), logger.Err(err))
		default:
			metrics.TenantConfigPushTotal.WithLabelValues(l.Name(), metrics.OutcomeFailed).Inc()
			log.Error("push failed", logger.String("listener", l.Name()), logger.Err(err))
		}
	}
	return applied
}
