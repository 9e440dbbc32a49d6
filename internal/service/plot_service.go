package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/skyplots/internal/eventbus"
	"github.com/annel0/skyplots/internal/logging"
	"github.com/annel0/skyplots/internal/metrics"
	"github.com/annel0/skyplots/internal/observability"
	"github.com/annel0/skyplots/internal/plot"
	"github.com/annel0/skyplots/internal/template"
	"github.com/annel0/skyplots/internal/vec"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EventSource — имя источника в конвертах событий
const EventSource = "plotd"

// Surface — мир, в котором размещаются участки. Помимо записи блоков
// умеет менять мировую точку появления (её задаёт лобби).
type Surface interface {
	plot.WorldSurface
	SetSpawn(pos vec.Vec3)
}

// PlotService — командная поверхность над реестром участков и библиотекой шаблонов
type PlotService struct {
	registry *plot.Registry
	library  *template.Library
	surface  Surface
	bus      eventbus.EventBus
	log      *logging.Logger
}

// NewPlotService создаёт сервис. bus может быть nil: тогда события уходят в
// глобальную шину (если она инициализирована).
func NewPlotService(registry *plot.Registry, library *template.Library, surface Surface, bus eventbus.EventBus) *PlotService {
	return &PlotService{
		registry: registry,
		library:  library,
		surface:  surface,
		bus:      bus,
		log:      logging.GetPlotLogger(),
	}
}

// Registry возвращает реестр участков
func (s *PlotService) Registry() *plot.Registry {
	return s.registry
}

// Library возвращает библиотеку шаблонов
func (s *PlotService) Library() *template.Library {
	return s.library
}

// Start переносит мировую точку появления в уже существующее лобби
func (s *PlotService) Start() {
	if lobby, ok := s.registry.Lobby(); ok {
		s.surface.SetSpawn(lobby.Spawn)
		s.log.Info("🏝️ Точка появления мира: лобби %s", lobby.Spawn)
	}
}

func (s *PlotService) startSpan(ctx context.Context, name string, owner uuid.UUID) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "PlotService."+name, trace.WithAttributes(
		attribute.String("plot.world", s.registry.WorldID()),
		attribute.String("plot.owner", owner.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *PlotService) defaultTemplate() (*template.Template, error) {
	tpl, err := s.library.Default()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateUnavailable, err)
	}
	return tpl, nil
}

// CreateOrGetPlot возвращает участок владельца, создавая его по шаблону
// по умолчанию. created сообщает, был ли участок создан этим вызовом.
func (s *PlotService) CreateOrGetPlot(ctx context.Context, owner uuid.UUID, name string) (p *plot.Plot, created bool, err error) {
	ctx, span := s.startSpan(ctx, "CreateOrGetPlot", owner)
	defer func() { endSpan(span, err) }()

	if existing, ok := s.registry.Get(owner); ok {
		return existing, false, nil
	}
	tpl, err := s.defaultTemplate()
	if err != nil {
		return nil, false, err
	}
	p, created, err = s.registry.GetOrCreate(ctx, s.surface, owner, name, tpl)
	if err != nil {
		return nil, false, err
	}
	if created {
		metrics.PlotsCreated.WithLabelValues("create").Inc()
		s.publish(ctx, eventbus.TypePlotCreated, s.plotEvent(p, "", tpl))
	}
	span.SetAttributes(attribute.Bool("plot.created", created))
	return p, created, nil
}

// RegeneratePlot строит владельцу новый участок в свежей ячейке, даже если
// участка ещё не было. Старая ячейка больше не используется.
// Пустое имя заменяется прежним именем участка, а без участка UUID владельца.
func (s *PlotService) RegeneratePlot(ctx context.Context, owner uuid.UUID, name string) (p *plot.Plot, err error) {
	ctx, span := s.startSpan(ctx, "RegeneratePlot", owner)
	defer func() { endSpan(span, err) }()

	old, hadPlot := s.registry.Get(owner)
	if name == "" && hadPlot {
		name = old.Name
	}
	tpl, err := s.templateFor(owner)
	if err != nil {
		return nil, err
	}
	p, err = s.registry.Regenerate(ctx, s.surface, owner, name, tpl)
	if err != nil {
		return nil, err
	}
	metrics.PlotsCreated.WithLabelValues("regenerate").Inc()
	if p.IsLobby() {
		s.surface.SetSpawn(p.Spawn)
	}
	s.publish(ctx, eventbus.TypePlotRegenerated, s.plotEvent(p, "", tpl))
	if hadPlot {
		s.log.Info("♻️ Участок %s перестроен: %s -> %s", owner, old.Spawn, p.Spawn)
	} else {
		s.log.Info("♻️ Участок %s построен заново без прежнего: %s", owner, p.Spawn)
	}
	return p, nil
}

// templateFor выбирает шаблон лобби для лобби и шаблон по умолчанию для остальных
func (s *PlotService) templateFor(owner uuid.UUID) (*template.Template, error) {
	if owner != plot.LobbyOwner {
		return s.defaultTemplate()
	}
	tpl, err := s.library.Lobby()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateUnavailable, err)
	}
	return tpl, nil
}

// GetLobby возвращает лобби, создавая его по шаблону лобби при первом обращении.
// Новое лобби становится мировой точкой появления.
func (s *PlotService) GetLobby(ctx context.Context) (p *plot.Plot, err error) {
	ctx, span := s.startSpan(ctx, "GetLobby", plot.LobbyOwner)
	defer func() { endSpan(span, err) }()

	if lobby, ok := s.registry.Lobby(); ok {
		return lobby, nil
	}
	tpl, err := s.templateFor(plot.LobbyOwner)
	if err != nil {
		return nil, err
	}
	p, created, err := s.registry.GetOrCreate(ctx, s.surface, plot.LobbyOwner, plot.LobbyName, tpl)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.PlotsCreated.WithLabelValues("lobby").Inc()
		s.surface.SetSpawn(p.Spawn)
		s.publish(ctx, eventbus.TypeLobbyCreated, s.plotEvent(p, "", tpl))
		s.log.Info("🏝️ Лобби создано в %s", p.Spawn)
	}
	return p, nil
}

// ListPlots возвращает снимок всех участков, отсортированный по владельцу
func (s *PlotService) ListPlots(ctx context.Context) []*plot.Plot {
	_, span := observability.Tracer().Start(ctx, "PlotService.ListPlots")
	defer span.End()
	plots := s.registry.List()
	metrics.PlotsTotal.Set(float64(len(plots)))
	return plots
}

// ReloadTemplates перечитывает библиотеку шаблонов. При ошибке остаётся
// прежний набор, а ошибка возвращается вызывающему.
func (s *PlotService) ReloadTemplates(ctx context.Context) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "PlotService.ReloadTemplates")
	defer func() { endSpan(span, err) }()

	if err := s.library.Reload(); err != nil {
		s.log.Error("❌ Перезагрузка шаблонов не удалась: %v", err)
		return err
	}

	infos := s.library.List()
	ev := eventbus.TemplatesReloadedEvent{Templates: make([]string, 0, len(infos))}
	for _, info := range infos {
		ev.Templates = append(ev.Templates, info.File)
	}
	if tpl, err := s.library.Default(); err == nil {
		ev.Default = tpl.Source()
	}
	if tpl, err := s.library.Lobby(); err == nil {
		ev.Lobby = tpl.Source()
	}
	s.publish(ctx, eventbus.TypeTemplatesReloaded, ev)
	return nil
}

// TeamPlot возвращает общий участок команды, создавая его при необходимости.
// Владелец — детерминированный UUID команды.
func (s *PlotService) TeamPlot(ctx context.Context, team string) (p *plot.Plot, created bool, err error) {
	team = strings.TrimSpace(team)
	if team == "" {
		return nil, false, ErrInvalidTeam
	}
	owner := plot.TeamID(team)
	ctx, span := s.startSpan(ctx, "TeamPlot", owner)
	span.SetAttributes(attribute.String("plot.team", team))
	defer func() { endSpan(span, err) }()

	tpl, err := s.defaultTemplate()
	if err != nil {
		return nil, false, err
	}
	p, created, err = s.registry.GetOrCreate(ctx, s.surface, owner, team, tpl)
	if err != nil {
		return nil, false, err
	}
	if created {
		metrics.PlotsCreated.WithLabelValues("team").Inc()
		s.publish(ctx, eventbus.TypePlotCreated, s.plotEvent(p, team, tpl))
	}
	return p, created, nil
}

// VisitPlot возвращает существующий участок владельца или ErrNoPlot
func (s *PlotService) VisitPlot(ctx context.Context, owner uuid.UUID) (*plot.Plot, error) {
	_, span := s.startSpan(ctx, "VisitPlot", owner)
	defer span.End()
	p, ok := s.registry.Get(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPlot, owner)
	}
	return p, nil
}

// OnPlayerJoin вызывается при входе игрока: гарантирует наличие лобби и
// возвращает его как место появления.
func (s *PlotService) OnPlayerJoin(ctx context.Context, player uuid.UUID) (*plot.Plot, error) {
	lobby, err := s.GetLobby(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debug("👤 Игрок %s вошёл, появление в лобби %s", player, lobby.Spawn)
	return lobby, nil
}

func (s *PlotService) plotEvent(p *plot.Plot, team string, tpl *template.Template) eventbus.PlotEvent {
	return eventbus.PlotEvent{
		World:    s.registry.WorldID(),
		Owner:    p.Owner.String(),
		Name:     p.Name,
		Team:     team,
		Template: tpl.Source(),
		Spawn:    p.Spawn,
	}
}

// publish отправляет событие; ошибка шины не влияет на результат операции
func (s *PlotService) publish(ctx context.Context, eventType string, payload interface{}) {
	env, err := eventbus.NewEnvelope(eventType, EventSource, 5, payload)
	if err != nil {
		s.log.Warn("Не удалось упаковать событие %s: %v", eventType, err)
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		env.CorrelationID = sc.TraceID().String()
	}

	if s.bus != nil {
		err = s.bus.Publish(ctx, env)
	} else {
		err = eventbus.Publish(ctx, env)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("Не удалось опубликовать событие %s: %v", eventType, err)
	}
}
