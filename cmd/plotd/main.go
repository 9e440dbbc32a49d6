package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/skyplots/internal/api"
	"github.com/annel0/skyplots/internal/auth"
	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/config"
	"github.com/annel0/skyplots/internal/eventbus"
	"github.com/annel0/skyplots/internal/logging"
	"github.com/annel0/skyplots/internal/observability"
	"github.com/annel0/skyplots/internal/plot"
	"github.com/annel0/skyplots/internal/service"
	"github.com/annel0/skyplots/internal/storage"
	"github.com/annel0/skyplots/internal/template"
	"github.com/annel0/skyplots/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или PLOTS_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем систему логирования
	logging.LogDir = cfg.Logging.Dir
	if err := logging.InitDefaultLogger("plotd"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()
	consoleLevel, fileLevel := logging.ParseLevel(cfg.Logging.Level), logging.ParseLevel(cfg.Logging.FileLevel)
	logging.SetDefaultLevels(consoleLevel, fileLevel)
	for _, component := range []string{"plots", "api", "storage"} {
		logging.GetComponentLogger(component)
		_ = logging.GetLoggerManager().SetLogLevel(component, consoleLevel, fileLevel)
	}

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("🏝️ Запуск skyplots: мир %s, шаг %d, высота %d", cfg.Plots.World, cfg.Plots.Spacing, cfg.Plots.DefaultY)

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	// === БЛОКИ И ШАБЛОНЫ ===
	catalog := block.DefaultCatalog()
	if cfg.Plots.BlocksDir != "" {
		types, err := block.LoadJSONTypes(cfg.Plots.BlocksDir)
		switch {
		case err != nil && !os.IsNotExist(err):
			return fmt.Errorf("описания блоков: %w", err)
		case err == nil:
			if catalog, err = catalog.With(types...); err != nil {
				return fmt.Errorf("описания блоков: %w", err)
			}
			logging.Info("🧱 Загружено дополнительных типов блоков: %d", len(types))
		}
	}

	library, err := template.NewLibrary(template.Options{
		Dir:         cfg.Plots.TemplatesDir,
		Default:     cfg.Plots.Template,
		Lobby:       cfg.Plots.Lobby,
		Catalog:     catalog,
		SeedBuiltin: true,
	})
	if err != nil {
		return fmt.Errorf("шаблоны: %w", err)
	}

	// === ХРАНИЛИЩА ===
	db, err := storage.OpenBadger(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("BadgerDB: %w", err)
	}
	defer db.Close()
	worldStorage := storage.NewWorldStorage(db)
	defer worldStorage.Close()

	stateStore, err := storage.Open(ctx, storage.Config{
		Backend: cfg.Storage.Backend,
		DataDir: cfg.Storage.DataDir,
		DSN:     cfg.Storage.DSN,
		Redis: storage.RedisConfig{
			Addr:      cfg.Storage.Redis.Addr,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,
		},
		Mongo: storage.MongoConfig{
			URI:        cfg.Storage.Mongo.URI,
			Database:   cfg.Storage.Mongo.Database,
			Collection: cfg.Storage.Mongo.Collection,
		},
	}, db)
	if err != nil {
		return fmt.Errorf("хранилище состояния: %w", err)
	}
	defer stateStore.Close()

	// === МИР И РЕЕСТР ===
	w := world.New(cfg.Plots.World, catalog, worldStorage)
	worldCtx, stopWorld := context.WithCancel(context.Background())
	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		w.Run(worldCtx, time.Duration(cfg.Storage.SaveInterval)*time.Second)
	}()
	defer func() {
		stopWorld()
		<-worldDone
	}()

	registry, err := plot.Open(ctx, plot.Options{
		WorldID: cfg.Plots.World,
		Spacing: cfg.Plots.Spacing,
		BaseY:   cfg.Plots.DefaultY,
		Store:   stateStore,
		Catalog: catalog,
	})
	if err != nil {
		return fmt.Errorf("реестр участков: %w", err)
	}

	// === ШИНА СОБЫТИЙ ===
	bus, err := openEventBus(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("шина событий: %w", err)
	}
	eventbus.Init(bus)
	defer eventbus.Close()

	if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		logging.Warn("Логирование событий недоступно: %v", err)
	}
	exporter, err := eventbus.NewMetricsExporter(bus, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("метрики шины: %w", err)
	}
	exporter.Start(10 * time.Second)
	defer exporter.Stop()

	svc := service.NewPlotService(registry, library, w, bus)
	svc.Start()

	// === ОПЕРАТОРЫ И REST API ===
	operators := auth.NewMemoryOperatorRepo()
	for _, op := range cfg.Auth.Operators {
		if _, err := operators.AddOperator(op.Username, op.PasswordHash, op.Admin); err != nil {
			return fmt.Errorf("оператор %s: %w", op.Username, err)
		}
	}
	if operators.Count() == 0 {
		logging.Warn("⚠️ Операторы не настроены: вход в REST API невозможен")
	}
	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Minute)
	if err != nil {
		return fmt.Errorf("JWT: %w", err)
	}

	outbound := api.NewOutboundWebhookManager(cfg.Plots.World)
	for _, target := range cfg.Webhooks.Targets {
		outbound.AddWebhook(api.OutboundWebhook{
			Name:       target.Name,
			URL:        target.URL,
			Secret:     target.Secret,
			Events:     target.Events,
			Timeout:    target.Timeout,
			RetryCount: target.RetryCount,
		})
	}
	if err := outbound.Attach(ctx, bus); err != nil {
		return fmt.Errorf("исходящие webhook'и: %w", err)
	}

	server, err := api.NewRestServer(api.Config{
		Addr:      cfg.Server.Addr(),
		Service:   svc,
		Operators: operators,
		Issuer:    issuer,
		World:     w,
		Webhook:   api.WebhookConfig{SecretKey: cfg.Webhooks.InboundSecret, EnableLogging: true},
		Outbound:  outbound,
	})
	if err != nil {
		return fmt.Errorf("REST API: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	logging.Info("✅ skyplots запущен")
	logging.Info("   🌐 REST API: http://%s", cfg.Server.Addr())
	logging.Info("   ❤️  Health check: http://%s/health", cfg.Server.Addr())

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("REST API: %w", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if err := registry.Flush(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка сохранения реестра: %v", err)
	}

	logging.Info("👋 skyplots остановлен")
	return nil
}

// openEventBus выбирает JetStream, если задан URL, иначе шину в памяти
func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("📡 Шина событий: в памяти (буфер %d)", cfg.Capacity)
		return eventbus.NewMemoryBus(cfg.Capacity), nil
	}
	return eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
}
