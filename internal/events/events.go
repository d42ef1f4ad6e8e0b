// Package events implements the core's synchronous observer registry.
//
// The source system models event emission with an event-emitter object;
// re-expressed for Go, subscribers register typed handlers against a
// stable event name and the core calls them inline at emission time. A
// handler that panics is recovered, logged, and never propagates back to
// the caller that triggered the emission — the documented "wrap and log
// on subscriber error" rule.
package events

import (
	"log/slog"
	"sync"
)

// Stable event names emitted by the core.
const (
	DBInitialized       = "db:initialized"
	DBSaved             = "db:saved"
	DBLoaded            = "db:loaded"
	DBClose             = "db:close"
	VectorAdd           = "vector:add"
	VectorsBulkAdd      = "vectors:bulkAdd"
	VectorDelete        = "vector:delete"
	VectorUpdate        = "vector:update"
	MetadataAdd         = "metadata:add"
	MetadataUpdate      = "metadata:update"
	PartitionLoaded     = "partition:loaded"
	PartitionUnloaded   = "partition:unloaded"
	PartitionCreated    = "partition:created"
	PartitionActivated  = "partition:activated"
	PartitionIndexLoad  = "partition:indexLoaded"
	PartitionIndexSaved = "partition:indexSaved"
	PartitionIndexProg  = "partition:indexProgress"
	PartitionIndexed    = "partition:indexed"
	PartitionError      = "partition:error"
	KMeansStart         = "kmeans:start"
	KMeansComplete      = "kmeans:complete"
	KMeansError         = "kmeans:error"
	ClusterCreate       = "cluster:create"
	ClusterDelete       = "cluster:delete"
)

// Handler receives the payload for one emission of a named event.
type Handler func(payload any)

// Emitter is a synchronous, panic-isolating pub/sub registry.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *slog.Logger
}

// NewEmitter creates an Emitter. A nil logger falls back to slog.Default().
func NewEmitter(log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{handlers: make(map[string][]Handler), log: log}
}

// On registers handler for event. Registration order is emission order.
func (e *Emitter) On(event string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handler)
}

// Emit calls every handler registered for event, synchronously, in the
// calling goroutine. A handler's panic is recovered and logged; it never
// reaches the emitting caller and never stops subsequent handlers.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.RLock()
	handlers := append([]Handler(nil), e.handlers[event]...)
	e.mu.RUnlock()

	for _, h := range handlers {
		e.callSafely(event, h, payload)
	}
}

func (e *Emitter) callSafely(event string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("event subscriber panicked", slog.String("event", event), slog.Any("recover", r))
		}
	}()
	h(payload)
}
