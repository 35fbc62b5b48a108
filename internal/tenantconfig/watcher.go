package tenantconfig

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dropDatabas3/uaagate/internal/observability/logger"
)

// Pusher recibe (path, payload). *Dispatcher lo implementa.
type Pusher interface {
	Push(ctx context.Context, path string, raw []byte) int
}

// PushTree empuja cada archivo regular bajo root con su path relativo ("/config/...").
// Devuelve la cantidad de archivos leídos.
func PushTree(ctx context.Context, root string, p Pusher) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		p.Push(ctx, relPath(root, path), raw)
		n++
		return nil
	})
	return n, err
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

// WatcherOption configura el Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay agrupa ráfagas de eventos del mismo archivo.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounceDelay = d }
}

// Watcher entrega la configuración de un directorio raíz vía fsnotify: un push inicial
// del árbol completo y luego un push por archivo modificado. Un archivo borrado o
// renombrado se empuja con payload vacío.
type Watcher struct {
	root          string
	sink          Pusher
	fsw           *fsnotify.Watcher
	debounceDelay time.Duration
	log           *zap.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewWatcher(root string, sink Pusher, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:          abs,
		sink:          sink,
		fsw:           fsw,
		debounceDelay: 100 * time.Millisecond,
		log:           logger.Named("tenantconfig").With(logger.Component("watcher")),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Start hace el push inicial y arranca el loop de observación.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// primero los directorios: un archivo escrito durante el push inicial no se pierde
	if err := w.addDirs(w.root); err != nil {
		return err
	}
	n, err := PushTree(ctx, w.root, w.sink)
	if err != nil {
		return err
	}
	w.log.Info("tenant config loaded", logger.ConfigPath(w.root), logger.Count(n))

	go w.loop(ctx)
	return nil
}

// Stop detiene el loop y libera el watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fsw.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh
	return w.fsw.Close()
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stoppedCh)

	pending := make(map[string]struct{})
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.collect(ev, pending) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounceDelay)
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			for p := range pending {
				w.flush(ctx, p)
				delete(pending, p)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", logger.Err(err))
		}
	}
}

// collect anota en pending los archivos afectados por ev. Un directorio nuevo (tenant
// nuevo) se agrega al watcher y se anotan los archivos que ya tenga.
func (w *Watcher) collect(ev fsnotify.Event, pending map[string]struct{}) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(ev.Name)
	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(name); err == nil && fi.IsDir() {
			if err := w.addDirs(name); err != nil {
				w.log.Warn("watch dir failed", logger.ConfigPath(name), logger.Err(err))
			}
			_ = filepath.WalkDir(name, func(p string, d fs.DirEntry, err error) error {
				if err == nil && d.Type().IsRegular() {
					pending[p] = struct{}{}
				}
				return nil
			})
			return true
		}
	}
	pending[name] = struct{}{}
	return true
}

func (w *Watcher) flush(ctx context.Context, path string) {
	rel := relPath(w.root, path)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		raw = nil
	default:
		w.log.Warn("read failed", logger.ConfigPath(rel), logger.Err(err))
		return
	}
	w.sink.Push(ctx, rel, raw)
}
