// README: In-process domain event queue; publishers never block, handlers run on the consumer goroutine.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rxflow/internal/types"
)

type Kind string

const (
	OrderStatusChanged Kind = "OrderStatusChanged"
	DeliveryAssigned   Kind = "DeliveryAssigned"
	PharmacyAssigned   Kind = "PharmacyAssigned"
)

type Event struct {
	Kind       Kind
	OrderID    types.ID
	DeliveryID types.ID
	Status     string
	Note       string
	ActorID    types.ID
	PharmacyID types.ID
	OfficerID  types.ID
	OccurredAt time.Time
}

type Handler func(ctx context.Context, e Event) error

const DefaultBufferSize = 256

type Bus struct {
	queue  chan Event
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

func NewBus(size int, logger *zap.Logger) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		queue:    make(chan Event, size),
		logger:   logger,
		handlers: make(map[Kind][]Handler),
	}
}

func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish enqueues e and returns immediately. When the queue is full the
// event is dropped and false is returned.
func (b *Bus) Publish(e Event) bool {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	select {
	case b.queue <- e:
		return true
	default:
		b.logger.Warn("event queue full, dropping event",
			zap.String("kind", string(e.Kind)),
			zap.String("order_id", e.OrderID.String()),
		)
		return false
	}
}

// Run delivers queued events until ctx is done.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			b.dispatch(ctx, e)
		}
	}
}

// Drain delivers whatever is queued right now and returns the number of events handled.
func (b *Bus) Drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case e := <-b.queue:
			b.dispatch(ctx, e)
			n++
		default:
			return n
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := b.safeCall(ctx, h, e); err != nil {
			b.logger.Error("event handler failed",
				zap.String("kind", string(e.Kind)),
				zap.String("order_id", e.OrderID.String()),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) safeCall(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, e)
}
