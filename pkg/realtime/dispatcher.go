package realtime

import (
	"context"
	"errors"

	"github.com/thijsmie/pocketbase/pkg/logger"
	"github.com/thijsmie/pocketbase/pkg/metrics"
)

type dispatchKey struct{}

func withDispatch(ctx context.Context) context.Context {
	return context.WithValue(ctx, dispatchKey{}, true)
}

// InDispatch reports whether ctx belongs to a running event handler.
func InDispatch(ctx context.Context) bool {
	v, _ := ctx.Value(dispatchKey{}).(bool)
	return v
}

// Dispatcher delivers pushed messages to the handlers of their topic key.
type Dispatcher struct {
	registry *Registry
	metrics  metrics.Provider
}

func NewDispatcher(registry *Registry, provider metrics.Provider) *Dispatcher {
	return &Dispatcher{registry: registry, metrics: provider}
}

func (d *Dispatcher) provider() metrics.Provider {
	if d.metrics != nil {
		return d.metrics
	}
	return metrics.GetProvider()
}

// Dispatch decodes msg and invokes every handler registered under its name.
// It returns the number of handlers invoked. Handler faults are reported and
// do not stop delivery to the remaining handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) int {
	handlers := d.registry.handlers(msg.Name)
	if len(handlers) == 0 {
		logger.Debug("[Realtime] No handlers for %s", msg.Name)
		return 0
	}

	event, err := ParseEvent(msg.Name, msg.Data)
	if err != nil {
		if errors.Is(err, ErrUnknownAction) {
			logger.Warn("[Realtime] Dropping message: %v", err)
		} else {
			logger.Error("[Realtime] Dropping message: %v", err)
		}
		return 0
	}

	d.provider().RecordEventDispatched(msg.Name)

	ctx = withDispatch(ctx)
	for _, h := range handlers {
		d.invoke(ctx, h, event.clone())
	}
	return len(handlers)
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			_ = logger.HandlePanic("realtime.Dispatcher("+event.Topic+")", r)
			d.provider().RecordCallbackFault(event.Topic)
		}
	}()

	if err := h.Handle(ctx, event); err != nil {
		logger.Error("[Realtime] Handler for %s (%s %s) failed: %v", event.Topic, event.Action, event.Record.ID(), err)
		d.provider().RecordCallbackFault(event.Topic)
	}
}
