package eventbus

import (
	"context"

	"github.com/annel0/skyplots/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог:
// события участков — на уровне INFO с точкой появления, остальные — DEBUG.
// Функция неблокирующая.
func StartLoggingListener(ctx context.Context, bus EventBus) (Subscription, error) {
	sub, err := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		switch ev.EventType {
		case TypePlotCreated, TypePlotRegenerated, TypeLobbyCreated:
			var p PlotEvent
			if err := ev.Decode(&p); err != nil {
				logging.Warn("[EventBus] %s: %v", ev.ID, err)
				return
			}
			logging.Info("[EventBus] %s %s владелец=%s имя=%q точка=%s шаблон=%s", ev.EventType, p.World, p.Owner, p.Name, p.Spawn, p.Template)
		default:
			logging.Debug("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
		}
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
