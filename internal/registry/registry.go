// Package registry owns the set of currently-armed conditional orders and
// evaluates them against live prices on each monitor tick.
package registry

import (
	"context"
	"fmt"
	"sync"

	"dexpilot/internal/domain"
	"dexpilot/internal/ports"
)

// Executor receives a triggered order together with the price that fired it.
// The order has already been unregistered when this is called.
type Executor interface {
	ExecuteOrder(ctx context.Context, order *domain.ConditionalOrder, price float64) error
}

// Registry holds armed conditional orders. It is the only in-memory shared
// mutable structure in the engine; the mutex guards the map and is never
// held across a price fetch or execution call.
type Registry struct {
	logger   ports.Logger
	oracle   ports.PriceOracle
	executor Executor

	mu     sync.Mutex
	orders map[string]*domain.ConditionalOrder
}

// New creates an empty registry.
func New(logger ports.Logger, oracle ports.PriceOracle, executor Executor) (*Registry, error) {
	if logger == nil || oracle == nil || executor == nil {
		return nil, fmt.Errorf("missing required dependencies for registry")
	}
	return &Registry{
		logger:   logger,
		oracle:   oracle,
		executor: executor,
		orders:   make(map[string]*domain.ConditionalOrder),
	}, nil
}

// Register arms an order. At most one live entry may exist per id.
func (r *Registry) Register(o *domain.ConditionalOrder) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order with empty id: %w", ports.ErrInvalidRequest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order %s already registered: %w", o.ID, ports.ErrAlreadyProcessed)
	}
	r.orders[o.ID] = o
	return nil
}

// Unregister removes an order, reporting whether it was present. Removal is
// effective for all future ticks immediately.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.orders[id]
	delete(r.orders, id)
	return ok
}

// Contains reports whether an order is currently armed.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.orders[id]
	return ok
}

// Len returns the number of armed orders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// snapshot copies the armed set so evaluation never iterates the live map.
func (r *Registry) snapshot() []*domain.ConditionalOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.ConditionalOrder, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out
}

// RunTick evaluates every armed order once. Failures are isolated per order:
// a price fetch error or execution error for one order never aborts
// evaluation of the others.
func (r *Registry) RunTick(ctx context.Context) {
	for _, order := range r.snapshot() {
		r.evaluate(ctx, order)
	}
}

func (r *Registry) evaluate(ctx context.Context, order *domain.ConditionalOrder) {
	price, err := r.oracle.GetPrice(ctx, order.Pair)
	if err != nil {
		// Order stays armed for the next tick.
		r.logger.Warn(ctx, "price fetch failed, skipping order this tick", map[string]interface{}{
			"orderID": order.ID, "pair": order.Pair, "error": err.Error(),
		})
		return
	}
	if price <= 0 {
		r.logger.Debug(ctx, "no price data this tick", map[string]interface{}{"orderID": order.ID, "pair": order.Pair})
		return
	}
	if !order.Triggered(price) {
		return
	}

	// Unregister before execution. If another goroutine already claimed the
	// order, losing the removal means losing the right to execute.
	if !r.Unregister(order.ID) {
		r.logger.Debug(ctx, "order already claimed, skipping", map[string]interface{}{"orderID": order.ID})
		return
	}

	r.logger.Info(ctx, "order triggered", map[string]interface{}{
		"orderID": order.ID, "kind": order.Kind, "side": order.Side,
		"triggerPrice": order.TriggerPrice, "price": price,
	})

	if err := r.executor.ExecuteOrder(ctx, order, price); err != nil {
		// The pipeline has already persisted the rejected state; the order
		// is not re-armed.
		r.logger.Error(ctx, err, "triggered order execution failed", map[string]interface{}{"orderID": order.ID})
	}
}

