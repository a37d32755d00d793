package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFireRunsHandlersInDescendingPriorityOrder(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	var order []string

	bus.Register(PostToolUse, func(_ context.Context, _ *Event) error {
		mu.Lock()
		order = append(order, "5")
		mu.Unlock()
		return nil
	}, WithPriority(5))

	bus.Register(PostToolUse, func(_ context.Context, _ *Event) error {
		mu.Lock()
		order = append(order, "10")
		mu.Unlock()
		return nil
	}, WithPriority(10))

	bus.Fire(context.Background(), NewEvent(PostToolUse))
	assert.Equal(t, []string{"10", "5"}, order)
}

func TestFireBreaksTiesByRegistrationOrder(t *testing.T) {
	bus := NewBus(nil)
	var order []string

	bus.Register(SessionStart, func(_ context.Context, _ *Event) error {
		order = append(order, "first")
		return nil
	}, WithPriority(PriorityNormal))
	bus.Register(SessionStart, func(_ context.Context, _ *Event) error {
		order = append(order, "second")
		return nil
	}, WithPriority(PriorityNormal))

	bus.Fire(context.Background(), NewEvent(SessionStart))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestFireIsolatesHandlerErrors(t *testing.T) {
	bus := NewBus(nil)
	var ran bool

	bus.Register(ErrorOccurred, func(_ context.Context, _ *Event) error {
		return errors.New("boom")
	}, WithPriority(10))
	bus.Register(ErrorOccurred, func(_ context.Context, _ *Event) error {
		ran = true
		return nil
	}, WithPriority(5))

	bus.Fire(context.Background(), NewEvent(ErrorOccurred))
	assert.True(t, ran, "lower-priority handler must still run after an earlier handler errors")
}

func TestFireIsolatesHandlerPanics(t *testing.T) {
	bus := NewBus(nil)
	var ran bool

	bus.Register(ErrorOccurred, func(_ context.Context, _ *Event) error {
		panic("boom")
	}, WithPriority(10))
	bus.Register(ErrorOccurred, func(_ context.Context, _ *Event) error {
		ran = true
		return nil
	}, WithPriority(5))

	assert.NotPanics(t, func() {
		bus.Fire(context.Background(), NewEvent(ErrorOccurred))
	})
	assert.True(t, ran)
}

func TestSharedStateVisibleAcrossHandlers(t *testing.T) {
	bus := NewBus(nil)
	bus.Register(PreToolUse, func(_ context.Context, e *Event) error {
		e.SharedState["seen"] = true
		return nil
	}, WithPriority(10))

	var sawSeen bool
	bus.Register(PreToolUse, func(_ context.Context, e *Event) error {
		sawSeen, _ = e.SharedState["seen"].(bool)
		return nil
	}, WithPriority(5))

	bus.Fire(context.Background(), NewEvent(PreToolUse))
	assert.True(t, sawSeen)
}

func TestUnregisterRemovesHandler(t *testing.T) {
	bus := NewBus(nil)
	var called bool
	id := bus.Register(GuideQueried, func(_ context.Context, _ *Event) error {
		called = true
		return nil
	})
	bus.Unregister(id)
	bus.Unregister("does-not-exist")

	bus.Fire(context.Background(), NewEvent(GuideQueried))
	assert.False(t, called)
}
