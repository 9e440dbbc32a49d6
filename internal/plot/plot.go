package plot

import (
	"github.com/annel0/skyplots/internal/vec"
	"github.com/google/uuid"
)

const (
	// LobbyName — имя участка лобби
	LobbyName = "<lobby>"
)

// LobbyOwner — владелец участка лобби (нулевой UUID)
var LobbyOwner = uuid.Nil

// Plot — зарегистрированный участок
type Plot struct {
	Owner uuid.UUID `json:"owner"`
	Name  string    `json:"name"`
	Spawn vec.Vec3  `json:"spawn"`
}

// IsLobby сообщает, является ли участок лобби
func (p *Plot) IsLobby() bool {
	return p.Owner == LobbyOwner
}

// Record — сохраняемое представление участка (владелец хранится ключом)
type Record struct {
	Name   string `json:"name"`
	SpawnX int    `json:"spawnX"`
	SpawnY int    `json:"spawnY"`
	SpawnZ int    `json:"spawnZ"`
}

// Record возвращает сохраняемое представление участка
func (p *Plot) Record() Record {
	return Record{Name: p.Name, SpawnX: p.Spawn.X, SpawnY: p.Spawn.Y, SpawnZ: p.Spawn.Z}
}

// FromRecord восстанавливает участок из сохранённого представления
func FromRecord(owner uuid.UUID, r Record) *Plot {
	return &Plot{
		Owner: owner,
		Name:  r.Name,
		Spawn: vec.Vec3{X: r.SpawnX, Y: r.SpawnY, Z: r.SpawnZ},
	}
}

func (p *Plot) clone() *Plot {
	c := *p
	return &c
}
