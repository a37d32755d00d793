package hooks

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/forgemcp/gateway/internal/observability"
)

// Bus dispatches events to their registered handlers in descending-priority
// order. A panic or error from one handler is caught and logged; it never
// prevents the remaining handlers for that event from running.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]*Registration
	byID     map[string]*Registration
	nextSeq  int
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewBus constructs an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Kind][]*Registration),
		byID:     make(map[string]*Registration),
		logger:   logger.With("component", "hooks"),
	}
}

// SetMetrics attaches a Metrics collector so every Fire is counted by kind.
// Optional; a Bus with no metrics attached just skips recording.
func (b *Bus) SetMetrics(m *observability.Metrics) {
	b.metrics = m
}

// Register subscribes handler to kind and returns a registration id usable
// with Unregister. Handlers default to PriorityNormal.
func (b *Bus) Register(kind Kind, handler Handler, opts ...RegisterOption) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg := &Registration{
		ID:       uuid.New().String(),
		Kind:     kind,
		Handler:  handler,
		Priority: PriorityNormal,
		seq:      b.nextSeq,
	}
	b.nextSeq++
	for _, opt := range opts {
		opt(reg)
	}

	b.handlers[kind] = append(b.handlers[kind], reg)
	b.byID[reg.ID] = reg

	// Descending priority; ties keep registration order (stable sort over
	// a monotonic seq accomplishes both at once).
	sort.SliceStable(b.handlers[kind], func(i, j int) bool {
		a, c := b.handlers[kind][i], b.handlers[kind][j]
		if a.Priority == c.Priority {
			return a.seq < c.seq
		}
		return a.Priority > c.Priority
	})

	b.logger.Debug("registered hook", "id", reg.ID, "kind", kind, "priority", reg.Priority)
	return reg.ID
}

// Unregister removes a handler by its registration id. No-op if absent.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)

	list := b.handlers[reg.Kind]
	for i, r := range list {
		if r.ID == id {
			b.handlers[reg.Kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Fire runs every handler registered for event.Kind, in descending-priority
// order, on the calling goroutine. Handler errors are logged, not returned:
// the event is never cancelled partway through.
func (b *Bus) Fire(ctx context.Context, event *Event) {
	b.metrics.RecordHookFired(string(event.Kind))

	b.mu.RLock()
	handlers := make([]*Registration, len(b.handlers[event.Kind]))
	copy(handlers, b.handlers[event.Kind])
	b.mu.RUnlock()

	for _, reg := range handlers {
		b.runHandler(ctx, reg, event)
	}
}

func (b *Bus) runHandler(ctx context.Context, reg *Registration, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("hook handler panicked", "id", reg.ID, "kind", event.Kind, "panic", r)
		}
	}()
	if err := reg.Handler(ctx, event); err != nil {
		b.logger.Error("hook handler failed", "id", reg.ID, "kind", event.Kind, "error", err)
	}
}
