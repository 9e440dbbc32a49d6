package eventbus

import (
	"github.com/annel0/skyplots/internal/vec"
)

// Типы событий. Используются как последний токен NATS-субъекта, поэтому без точек.
const (
	TypePlotCreated       = "PlotCreated"
	TypePlotRegenerated   = "PlotRegenerated"
	TypeLobbyCreated      = "LobbyCreated"
	TypeTemplatesReloaded = "TemplatesReloaded"
)

// PlotEvent — участок создан или перестроен
type PlotEvent struct {
	World    string   `json:"world"`
	Owner    string   `json:"owner"`
	Name     string   `json:"name"`
	Team     string   `json:"team,omitempty"`
	Template string   `json:"template"`
	Spawn    vec.Vec3 `json:"spawn"`
}

// TemplatesReloadedEvent — библиотека шаблонов перезагружена
type TemplatesReloadedEvent struct {
	Default   string   `json:"default"`
	Lobby     string   `json:"lobby"`
	Templates []string `json:"templates"`
}
