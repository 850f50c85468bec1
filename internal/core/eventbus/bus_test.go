package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

type testEvent struct {
	Value int
}

type otherEvent struct{}

// TestBus_EmitAndReceive 测试事件发射和接收
func TestBus_EmitAndReceive(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(testEvent{Value: 42}))

	select {
	case evt := <-sub.Out():
		assert.Equal(t, testEvent{Value: 42}, evt)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

// TestBus_InvalidTypes 测试无效事件类型
func TestBus_InvalidTypes(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe(nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)

	_, err = bus.Subscribe(testEvent{})
	assert.ErrorIs(t, err, ErrNonPointerType)

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	assert.ErrorIs(t, em.Emit(otherEvent{}), ErrInvalidEventType)
}

// TestBus_TypeIsolation 测试不同事件类型互不干扰
func TestBus_TypeIsolation(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(otherEvent))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	require.NoError(t, em.Emit(testEvent{Value: 1}))

	select {
	case evt := <-sub.Out():
		t.Fatalf("unexpected event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestBus_Stateful 测试有状态发射器向新订阅者重放最后事件
func TestBus_Stateful(t *testing.T) {
	bus := NewBus()

	em, err := bus.Emitter(new(testEvent), Stateful())
	require.NoError(t, err)
	require.NoError(t, em.Emit(testEvent{Value: 7}))

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, testEvent{Value: 7}, <-sub.Out())
}

// TestBus_SlowSubscriberDrops 测试缓冲区满时不阻塞发射者
func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent), BufSize(1))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, em.Emit(testEvent{Value: i}))
	}
	assert.Equal(t, testEvent{Value: 0}, <-sub.Out())
}

// TestEmitter_Deliver 测试送达计数
func TestEmitter_Deliver(t *testing.T) {
	bus := NewBus()
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	n, err := em.Deliver(testEvent{Value: 1})
	require.NoError(t, err)
	assert.Zero(t, n, "没有订阅者")

	sub, err := bus.Subscribe(new(testEvent), BufSize(1))
	require.NoError(t, err)
	defer sub.Close()

	n, err = em.Deliver(testEvent{Value: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = em.Deliver(testEvent{Value: 3})
	require.NoError(t, err)
	assert.Zero(t, n, "缓冲区已满")

	require.NoError(t, em.Close())
	_, err = em.Deliver(testEvent{Value: 4})
	assert.ErrorIs(t, err, ErrEmitterClosed)
}

// TestBus_Close 测试关闭总线会关闭所有订阅
func TestBus_Close(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-sub.Out()
	assert.False(t, ok)

	_, err = bus.Subscribe(new(testEvent))
	assert.ErrorIs(t, err, ErrClosed)

	// 重复关闭安全
	assert.NoError(t, sub.Close())
	assert.NoError(t, bus.Close())
}

// TestModule_Lifecycle 测试 Fx 模块提供总线并在停止时关闭
func TestModule_Lifecycle(t *testing.T) {
	var bus *Bus
	app := fxtest.New(t, Module(), fx.Populate(&bus))
	app.RequireStart()
	require.NotNil(t, bus)

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)

	require.NoError(t, app.Stop(context.Background()))
	_, ok := <-sub.Out()
	assert.False(t, ok)
}
