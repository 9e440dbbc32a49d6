package service

import "errors"

var (
	// ErrNoPlot — у владельца нет участка
	ErrNoPlot = errors.New("plot not found")
	// ErrTemplateUnavailable — нужный шаблон не загружен или отключён
	ErrTemplateUnavailable = errors.New("template unavailable")
	// ErrInvalidTeam — пустое имя команды
	ErrInvalidTeam = errors.New("invalid team name")
)
