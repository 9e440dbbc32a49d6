package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Типы входящих уведомлений игрового сервера
const (
	HookPlayerJoined = "player.joined" // data: player
	HookPlayerPlot   = "player.plot"   // data: player, name
	HookTeamPlot     = "team.plot"     // data: team
)

// WebhookEvent представляет webhook событие
type WebhookEvent struct {
	EventType string            `json:"event_type" binding:"required"`
	Timestamp int64             `json:"timestamp"`
	Data      map[string]string `json:"data"`
	Source    string            `json:"source,omitempty"`
}

// WebhookConfig конфигурация входящих webhook
type WebhookConfig struct {
	SecretKey     string // пусто — подпись не проверяется
	EnableLogging bool
}

// HandleWebhook принимает уведомления игрового сервера о входе игроков
// и запросах участков. Тело подписывается HMAC-SHA256 в X-Webhook-Signature.
func (rs *RestServer) HandleWebhook(c *gin.Context) {
	if !strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Требуется Content-Type: application/json",
		})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Не удалось прочитать тело"})
		return
	}
	if !rs.verifyWebhookSignature(body, c.GetHeader("X-Webhook-Signature")) {
		rs.log.Warn("🔒 Webhook с неверной подписью от %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, GenericResponse{Success: false, Message: "Неверная подпись"})
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.EventType == "" {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат события",
		})
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	if rs.webhookConfig.EnableLogging {
		rs.log.Info("📧 Webhook событие: %s от %s", event.EventType, c.ClientIP())
	}

	result, err := rs.processWebhookEvent(c.Request.Context(), event)
	if err != nil {
		rs.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Webhook обработан",
		Data: map[string]interface{}{
			"event_id":     fmt.Sprintf("%d_%s", event.Timestamp, event.EventType),
			"processed_at": time.Now().Unix(),
			"result":       result,
		},
	})
}

// processWebhookEvent обрабатывает различные типы событий
func (rs *RestServer) processWebhookEvent(ctx context.Context, event WebhookEvent) (map[string]interface{}, error) {
	result := map[string]interface{}{
		"event_type": event.EventType,
		"status":     "processed",
	}

	switch event.EventType {
	case HookPlayerJoined:
		player, err := uuid.Parse(event.Data["player"])
		if err != nil {
			return nil, fmt.Errorf("%w: player", errBadHookData)
		}
		lobby, err := rs.service.OnPlayerJoin(ctx, player)
		if err != nil {
			return nil, err
		}
		result["spawn"] = toResponse(lobby)
	case HookPlayerPlot:
		player, err := uuid.Parse(event.Data["player"])
		if err != nil {
			return nil, fmt.Errorf("%w: player", errBadHookData)
		}
		p, created, err := rs.service.CreateOrGetPlot(ctx, player, event.Data["name"])
		if err != nil {
			return nil, err
		}
		resp := toResponse(p)
		resp.Created = created
		result["plot"] = resp
	case HookTeamPlot:
		p, created, err := rs.service.TeamPlot(ctx, event.Data["team"])
		if err != nil {
			return nil, err
		}
		resp := toResponse(p)
		resp.Created = created
		result["plot"] = resp
	default:
		result["status"] = "unknown_event"
		result["details"] = "Неизвестный тип события"
	}

	return result, nil
}

// verifyWebhookSignature проверяет подпись webhook
func (rs *RestServer) verifyWebhookSignature(body []byte, signature string) bool {
	if rs.webhookConfig.SecretKey == "" {
		return true // Если секрет не настроен, пропускаем проверку
	}
	expected := Sign(body, rs.webhookConfig.SecretKey)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Sign возвращает подпись тела в формате "sha256=<hex>"
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
