package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/annel0/skyplots/internal/eventbus"
	"github.com/annel0/skyplots/internal/logging"
)

// OutboundWebhook представляет исходящий webhook
type OutboundWebhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name" binding:"required"`
	URL          string     `json:"url" binding:"required"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events" binding:"required"` // Типы событий шины; "*" — все
	Active       bool       `json:"active"`
	Timeout      int        `json:"timeout"` // Таймаут в секундах
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// OutboundWebhookEvent — тело, которое получает подписчик
type OutboundWebhookEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp int64           `json:"timestamp"`
	World     string          `json:"world"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// OutboundWebhookManager пересылает события шины на внешние URL
type OutboundWebhookManager struct {
	webhooks   map[uint64]*OutboundWebhook
	eventQueue chan OutboundWebhookEvent
	mu         sync.RWMutex
	nextID     uint64
	httpClient *http.Client
	world      string
	retryDelay time.Duration
	log        *logging.Logger

	sub       eventbus.Subscription
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewOutboundWebhookManager создает новый менеджер исходящих webhook'ов
func NewOutboundWebhookManager(world string) *OutboundWebhookManager {
	manager := &OutboundWebhookManager{
		webhooks:   make(map[uint64]*OutboundWebhook),
		eventQueue: make(chan OutboundWebhookEvent, 1000),
		nextID:     1,
		world:      world,
		retryDelay: time.Second,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logging.GetAPILogger(),
		done:       make(chan struct{}),
	}

	// Запускаем воркера для обработки событий
	manager.wg.Add(1)
	go manager.eventWorker()

	return manager
}

// Attach подписывает менеджер на все события шины
func (owm *OutboundWebhookManager) Attach(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		owm.SendEvent(ev)
	})
	if err != nil {
		return err
	}
	owm.mu.Lock()
	owm.sub = sub
	owm.mu.Unlock()
	return nil
}

// AddWebhook добавляет новый webhook
func (owm *OutboundWebhookManager) AddWebhook(webhook OutboundWebhook) *OutboundWebhook {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	webhook.ID = owm.nextID
	owm.nextID++
	webhook.CreatedAt = time.Now()
	webhook.Active = true

	if webhook.Timeout == 0 {
		webhook.Timeout = 30
	}
	if webhook.RetryCount == 0 {
		webhook.RetryCount = 3
	}

	owm.webhooks[webhook.ID] = &webhook
	c := webhook
	return &c
}

// GetWebhooks возвращает копии всех webhook'ов по возрастанию ID
func (owm *OutboundWebhookManager) GetWebhooks() []OutboundWebhook {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhooks := make([]OutboundWebhook, 0, len(owm.webhooks))
	for _, webhook := range owm.webhooks {
		webhooks = append(webhooks, *webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].ID < webhooks[j].ID })
	return webhooks
}

// DeleteWebhook удаляет webhook
func (owm *OutboundWebhookManager) DeleteWebhook(id uint64) bool {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	if _, exists := owm.webhooks[id]; !exists {
		return false
	}
	delete(owm.webhooks, id)
	return true
}

// SendEvent ставит событие шины в очередь отправки
func (owm *OutboundWebhookManager) SendEvent(ev *eventbus.Envelope) {
	event := OutboundWebhookEvent{
		EventID:   ev.ID,
		EventType: ev.EventType,
		Timestamp: ev.Timestamp.Unix(),
		World:     owm.world,
		Source:    ev.Source,
		Data:      json.RawMessage(ev.Payload),
	}

	select {
	case <-owm.done:
		return
	default:
	}

	select {
	case owm.eventQueue <- event:
		owm.log.Debug("📤 Событие %s добавлено в очередь webhook'ов", ev.EventType)
	default:
		owm.log.Warn("⚠️  Очередь webhook'ов переполнена, событие %s пропущено", ev.EventType)
	}
}

// Close отписывается от шины и останавливает воркер
func (owm *OutboundWebhookManager) Close() {
	owm.closeOnce.Do(func() {
		owm.mu.RLock()
		sub := owm.sub
		owm.mu.RUnlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		close(owm.done)
		owm.wg.Wait()
	})
}

// eventWorker обрабатывает события из очереди
func (owm *OutboundWebhookManager) eventWorker() {
	defer owm.wg.Done()
	for {
		select {
		case <-owm.done:
			return
		case event := <-owm.eventQueue:
			owm.processEvent(event)
		}
	}
}

// processEvent рассылает событие подписанным webhook'ам
func (owm *OutboundWebhookManager) processEvent(event OutboundWebhookEvent) {
	owm.mu.RLock()
	webhooks := make([]*OutboundWebhook, 0)
	for _, webhook := range owm.webhooks {
		if webhook.Active && isSubscribedToEvent(webhook, event.EventType) {
			webhooks = append(webhooks, webhook)
		}
	}
	owm.mu.RUnlock()

	for _, webhook := range webhooks {
		owm.wg.Add(1)
		go func(w *OutboundWebhook) {
			defer owm.wg.Done()
			owm.sendToWebhook(w, event)
		}(webhook)
	}
}

// isSubscribedToEvent проверяет, подписан ли webhook на событие
func isSubscribedToEvent(webhook *OutboundWebhook, eventType string) bool {
	for _, subscribedEvent := range webhook.Events {
		if subscribedEvent == eventType || subscribedEvent == "*" {
			return true
		}
	}
	return false
}

// sendToWebhook отправляет событие конкретному webhook'у с повторами
func (owm *OutboundWebhookManager) sendToWebhook(webhook *OutboundWebhook, event OutboundWebhookEvent) {
	owm.mu.RLock()
	name, url, secret := webhook.Name, webhook.URL, webhook.Secret
	timeout, retries := webhook.Timeout, webhook.RetryCount
	owm.mu.RUnlock()

	jsonData, err := json.Marshal(event)
	if err != nil {
		owm.log.Error("❌ Ошибка маршалинга события для webhook %s: %v", name, err)
		return
	}

	success := false
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-owm.done:
				return
			case <-time.After(time.Duration(attempt) * owm.retryDelay):
			}
		}
		status, err := owm.post(url, secret, jsonData, event, time.Duration(timeout)*time.Second)
		if err != nil {
			owm.log.Warn("⚠️  Попытка %d/%d для webhook %s: %v", attempt+1, retries+1, name, err)
			continue
		}
		if status >= 200 && status < 300 {
			success = true
			owm.log.Debug("✅ Событие %s отправлено в webhook %s", event.EventType, name)
			break
		}
		owm.log.Warn("⚠️  Webhook %s вернул статус %d на попытке %d", name, status, attempt+1)
	}

	owm.mu.Lock()
	now := time.Now()
	webhook.LastUsed = &now
	if !success {
		webhook.FailureCount++
	}
	owm.mu.Unlock()
}

func (owm *OutboundWebhookManager) post(url, secret string, body []byte, event OutboundWebhookEvent, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "skyplots/"+Version)
	req.Header.Set("X-Event-Type", event.EventType)
	req.Header.Set("X-Event-ID", event.EventID)
	if secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, secret))
	}

	resp, err := owm.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// EventTypes возвращает типы событий, на которые можно подписаться
func EventTypes() []string {
	return []string{
		eventbus.TypePlotCreated,
		eventbus.TypePlotRegenerated,
		eventbus.TypeLobbyCreated,
		eventbus.TypeTemplatesReloaded,
	}
}
