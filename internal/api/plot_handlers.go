package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/annel0/skyplots/internal/plot"
	"github.com/annel0/skyplots/internal/service"
	"github.com/annel0/skyplots/internal/template"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PlotRequest — тело запроса на создание или перестройку участка
type PlotRequest struct {
	Name string `json:"name"`
}

// PlotResponse — участок в ответах API
type PlotResponse struct {
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	SpawnX  int    `json:"spawnX"`
	SpawnY  int    `json:"spawnY"`
	SpawnZ  int    `json:"spawnZ"`
	Lobby   bool   `json:"lobby,omitempty"`
	Created bool   `json:"created,omitempty"`
}

func toResponse(p *plot.Plot) PlotResponse {
	return PlotResponse{
		Owner:  p.Owner.String(),
		Name:   p.Name,
		SpawnX: p.Spawn.X,
		SpawnY: p.Spawn.Y,
		SpawnZ: p.Spawn.Z,
		Lobby:  p.IsLobby(),
	}
}

var errBadHookData = errors.New("invalid webhook data")

// statusFor переводит ошибку домена в HTTP-статус
func statusFor(err error) int {
	var cfgErr *template.ConfigError
	var placeErr *plot.PlacementError
	switch {
	case errors.Is(err, service.ErrNoPlot):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTeam), errors.Is(err, errBadHookData):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTemplateUnavailable), errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, plot.ErrUnbound):
		return http.StatusServiceUnavailable
	case errors.Is(err, plot.ErrCursorExhausted):
		return http.StatusInsufficientStorage
	case errors.As(err, &placeErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (rs *RestServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= 500 {
		rs.log.Error("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

func parseOwner(c *gin.Context) (uuid.UUID, bool) {
	owner, err := uuid.Parse(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный UUID владельца",
		})
		return uuid.Nil, false
	}
	return owner, true
}

// handleListPlots возвращает все участки
func (rs *RestServer) handleListPlots(c *gin.Context) {
	plots := rs.service.ListPlots(c.Request.Context())
	result := make([]PlotResponse, 0, len(plots))
	for _, p := range plots {
		result = append(result, toResponse(p))
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список участков",
		Data: map[string]interface{}{
			"plots": result,
			"total": len(result),
		},
	})
}

// handleGetPlot возвращает участок владельца
func (rs *RestServer) handleGetPlot(c *gin.Context) {
	owner, ok := parseOwner(c)
	if !ok {
		return
	}
	p, err := rs.service.VisitPlot(c.Request.Context(), owner)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Участок найден", Data: toResponse(p)})
}

// handleCreatePlot создаёт участок владельцу или возвращает существующий
func (rs *RestServer) handleCreatePlot(c *gin.Context) {
	owner, ok := parseOwner(c)
	if !ok {
		return
	}
	var req PlotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
			return
		}
	}

	p, created, err := rs.service.CreateOrGetPlot(c.Request.Context(), owner, req.Name)
	if err != nil {
		rs.fail(c, err)
		return
	}
	resp := toResponse(p)
	resp.Created = created
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, GenericResponse{Success: true, Message: "Участок готов", Data: resp})
}

// handleRegeneratePlot перестраивает участок в новой ячейке
func (rs *RestServer) handleRegeneratePlot(c *gin.Context) {
	owner, ok := parseOwner(c)
	if !ok {
		return
	}
	var req PlotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
			return
		}
	}

	p, err := rs.service.RegeneratePlot(c.Request.Context(), owner, req.Name)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Участок перестроен", Data: toResponse(p)})
}

// handleTeamPlot создаёт или возвращает участок команды
func (rs *RestServer) handleTeamPlot(c *gin.Context) {
	p, created, err := rs.service.TeamPlot(c.Request.Context(), c.Param("team"))
	if err != nil {
		rs.fail(c, err)
		return
	}
	resp := toResponse(p)
	resp.Created = created
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Участок команды", Data: resp})
}

// handleGetLobby возвращает лобби, создавая его при первом обращении
func (rs *RestServer) handleGetLobby(c *gin.Context) {
	p, err := rs.service.GetLobby(c.Request.Context())
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Лобби", Data: toResponse(p)})
}

// handleListTemplates возвращает загруженные шаблоны
func (rs *RestServer) handleListTemplates(c *gin.Context) {
	library := rs.service.Library()
	data := map[string]interface{}{"templates": library.List()}
	if tpl, err := library.Default(); err == nil {
		data["default"] = tpl.Source()
	}
	if tpl, err := library.Lobby(); err == nil {
		data["lobby"] = tpl.Source()
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Шаблоны", Data: data})
}

// handleReloadTemplates перечитывает библиотеку шаблонов
func (rs *RestServer) handleReloadTemplates(c *gin.Context) {
	if err := rs.service.ReloadTemplates(c.Request.Context()); err != nil {
		rs.fail(c, err)
		return
	}
	operator := c.GetString(ctxOperator)
	rs.log.Info("📚 Шаблоны перезагружены оператором %s", operator)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Шаблоны перезагружены",
		Data:    rs.service.Library().List(),
	})
}
