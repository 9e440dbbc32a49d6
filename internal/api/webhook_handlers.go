package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleGetOutboundWebhooks возвращает список исходящих webhook'ов
func (rs *RestServer) handleGetOutboundWebhooks(c *gin.Context) {
	webhooks := rs.outboundWebhooks.GetWebhooks()
	for i := range webhooks {
		webhooks[i].Secret = ""
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список webhook'ов получен",
		Data: map[string]interface{}{
			"webhooks": webhooks,
			"total":    len(webhooks),
			"events":   EventTypes(),
		},
	})
}

// handleCreateOutboundWebhook регистрирует исходящий webhook
func (rs *RestServer) handleCreateOutboundWebhook(c *gin.Context) {
	var webhook OutboundWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат webhook: " + err.Error(),
		})
		return
	}

	created := rs.outboundWebhooks.AddWebhook(webhook)
	created.Secret = ""
	rs.log.Info("🔗 Добавлен webhook %s -> %s", created.Name, created.URL)
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Webhook создан",
		Data:    created,
	})
}

// handleDeleteOutboundWebhook удаляет исходящий webhook
func (rs *RestServer) handleDeleteOutboundWebhook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный ID webhook"})
		return
	}
	if !rs.outboundWebhooks.DeleteWebhook(id) {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Webhook не найден"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Webhook удалён"})
}
