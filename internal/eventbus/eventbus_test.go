package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/skyplots/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	received := make(chan *Envelope, 4)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{TypePlotCreated}}, func(ctx context.Context, ev *Envelope) {
		received <- ev
	})
	require.NoError(t, err)

	created, err := NewEnvelope(TypePlotCreated, "test", 5, PlotEvent{Owner: "abc", Name: "alice", Spawn: vec.Vec3{X: 8, Y: 80, Z: 8}})
	require.NoError(t, err)
	other, err := NewEnvelope(TypeTemplatesReloaded, "test", 5, TemplatesReloadedEvent{Default: "default.yaml"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), other))
	require.NoError(t, bus.Publish(context.Background(), created))

	select {
	case ev := <-received:
		assert.Equal(t, TypePlotCreated, ev.EventType)
		var payload PlotEvent
		require.NoError(t, ev.Decode(&payload))
		assert.Equal(t, "alice", payload.Name)
		assert.Equal(t, vec.Vec3{X: 8, Y: 80, Z: 8}, payload.Spawn)
	case <-time.After(2 * time.Second):
		t.Fatal("событие не доставлено")
	}

	select {
	case ev := <-received:
		t.Fatalf("фильтр пропустил лишнее событие %s", ev.EventType)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	received := make(chan struct{}, 1)
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		received <- struct{}{}
	})
	require.NoError(t, err)
	sub.Unsubscribe()

	ev, err := NewEnvelope(TypePlotCreated, "test", 5, PlotEvent{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	select {
	case <-received:
		t.Fatal("отписанный обработчик получил событие")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryBus_ClosedRejectsPublish(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "повторное закрытие безопасно")

	ev, err := NewEnvelope(TypePlotCreated, "test", 9, PlotEvent{})
	require.NoError(t, err)
	assert.Error(t, bus.Publish(context.Background(), ev))
}

func TestMatchFilter(t *testing.T) {
	ev := &Envelope{EventType: TypePlotCreated, Source: "plotd"}
	assert.True(t, matchFilter(ev, Filter{}))
	assert.True(t, matchFilter(ev, Filter{Types: []string{TypeLobbyCreated, TypePlotCreated}}))
	assert.False(t, matchFilter(ev, Filter{Types: []string{TypeLobbyCreated}}))
	assert.False(t, matchFilter(ev, Filter{Sources: []string{"plot-cli"}}))
}

func TestMetricsExporter_Update(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	me, err := NewMetricsExporter(bus, reg)
	require.NoError(t, err)

	ev, err := NewEnvelope(TypePlotCreated, "test", 5, PlotEvent{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Publish(context.Background(), ev))

	prev := me.update(Stats{})
	assert.Equal(t, uint64(2), prev.Published)
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))

	// Повторное обновление без новых событий не меняет счётчик
	me.update(prev)
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))

	// Повторная регистрация в том же реестре — ошибка
	_, err = NewMetricsExporter(bus, reg)
	assert.Error(t, err)
}
