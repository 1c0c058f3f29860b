// File: internal/emergency/watcher.go
package emergency

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// Watcher listens on the global trigger source independently of the
// orchestration goroutine. On trigger it sets the shared abort flag,
// cancels every registered in-flight operation, and signals the
// orchestrator over Tripped.
type Watcher struct {
	flag   *Flag
	source schemas.TriggerSource
	log    *zap.Logger

	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc
	nextID  uint64

	tripped chan struct{}
}

// NewWatcher wires a watcher to the flag and trigger source.
func NewWatcher(flag *Flag, source schemas.TriggerSource, logger *zap.Logger) *Watcher {
	return &Watcher{
		flag:    flag,
		source:  source,
		log:     logger.Named("emergency"),
		cancels: make(map[uint64]context.CancelFunc),
		tripped: make(chan struct{}, 1),
	}
}

// Run subscribes to the trigger source and blocks until the context ends.
func (w *Watcher) Run(ctx context.Context) error {
	unsubscribe, err := w.source.Subscribe(w.onTrigger)
	if err != nil {
		return err
	}
	defer unsubscribe()

	w.log.Info("Emergency stop watcher armed")
	<-ctx.Done()
	w.log.Info("Emergency stop watcher stopped")
	return nil
}

// onTrigger runs on the trigger source's delivery goroutine. It must never
// block: a single atomic write, a short-held sweep of the cancel registry,
// and a non-blocking signal.
func (w *Watcher) onTrigger() {
	w.flag.Trip("emergency stop triggered")
	w.log.Warn("EMERGENCY STOP triggered; aborting all in-flight work")

	w.mu.Lock()
	for _, cancel := range w.cancels {
		cancel()
	}
	w.cancels = make(map[uint64]context.CancelFunc)
	w.mu.Unlock()

	select {
	case w.tripped <- struct{}{}:
	default:
	}
}

// Tripped signals once per trigger; the orchestrator selects on it to flush
// the audit log and transition the current plan to Aborted.
func (w *Watcher) Tripped() <-chan struct{} {
	return w.tripped
}

// RegisterCancel records the cancel func of an in-flight display operation
// so a trigger can preempt it without waiting for its timeout. The returned
// release must be called when the operation finishes.
func (w *Watcher) RegisterCancel(cancel context.CancelFunc) (release func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.cancels[id] = cancel
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.cancels, id)
		w.mu.Unlock()
	}
}
