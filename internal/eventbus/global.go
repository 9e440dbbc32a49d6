package eventbus

import "context"

var globalBus EventBus

// Init устанавливает глобальную шину.
func Init(bus EventBus) { globalBus = bus }

// Publish отправляет событие в глобальную шину, если она инициализирована.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	return globalBus.Publish(ctx, ev)
}

// Close закрывает глобальную шину.
func Close() error {
	if globalBus == nil {
		return nil
	}
	err := globalBus.Close()
	globalBus = nil
	return err
}
