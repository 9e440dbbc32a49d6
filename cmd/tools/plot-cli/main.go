package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/skyplots/internal/auth"
	"github.com/annel0/skyplots/internal/eventbus"
	"github.com/annel0/skyplots/internal/plot"
	"github.com/annel0/skyplots/internal/storage"
	"github.com/dgraph-io/badger/v3"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		command    = flag.String("cmd", "tail", "Command: tail, dump, token, hash, team")
		natsURL    = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
		stream     = flag.String("stream", "SKYPLOTS", "JetStream stream name")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 = follow)")
		backend    = flag.String("backend", storage.BackendBadger, "State backend: badger, sqlite, mysql, redis, mongo")
		dataDir    = flag.String("data", "data", "Data directory (badger/sqlite)")
		dsn        = flag.String("dsn", "", "DSN for mysql/sqlite")
		worldID    = flag.String("world", plot.DefaultWorldID, "World ID")
		secret     = flag.String("secret", os.Getenv("PLOTS_JWT_SECRET"), "JWT secret (base64)")
		username   = flag.String("user", "admin", "Operator name for token")
		admin      = flag.Bool("admin", true, "Issue admin token")
		ttl        = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *command {
	case "tail":
		err = tailEvents(ctx, *natsURL, *stream, parseStringList(*eventTypes), *limit)
	case "dump":
		err = dumpPlots(ctx, storage.Config{Backend: *backend, DataDir: *dataDir, DSN: *dsn}, *worldID)
	case "token":
		err = mintToken(*secret, *username, *admin, *ttl)
	case "hash":
		err = hashPassword(flag.Arg(0))
	case "team":
		if flag.NArg() == 0 {
			err = fmt.Errorf("usage: plot-cli -cmd team <name>")
			break
		}
		fmt.Println(plot.TeamID(flag.Arg(0)))
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, dump, token, hash, team")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// tailEvents выводит события шины в реальном времени
func tailEvents(ctx context.Context, url, stream string, types []string, limit int) error {
	bus, err := eventbus.NewJetStreamBus(url, stream, 72*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("🎬 Tailing %s (types: %v)\n", stream, types)

	events := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(ctx context.Context, ev *eventbus.Envelope) {
		events <- ev
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", count)
			return nil
		case ev := <-events:
			printEvent(ev)
			count++
			if limit > 0 && count >= limit {
				fmt.Printf("\n📊 Total events: %d\n", count)
				return nil
			}
		}
	}
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s [%s] %s\n", ev.Timestamp.Format("15:04:05"), ev.Source, ev.EventType, ev.ID)

	switch ev.EventType {
	case eventbus.TypePlotCreated, eventbus.TypePlotRegenerated, eventbus.TypeLobbyCreated:
		var p eventbus.PlotEvent
		if err := ev.Decode(&p); err == nil {
			fmt.Printf("  World: %s Owner: %s Name: %s Spawn: %s Template: %s\n", p.World, p.Owner, p.Name, p.Spawn, p.Template)
			if p.Team != "" {
				fmt.Printf("  Team: %s\n", p.Team)
			}
		}
	case eventbus.TypeTemplatesReloaded:
		var t eventbus.TemplatesReloadedEvent
		if err := ev.Decode(&t); err == nil {
			fmt.Printf("  Default: %s Lobby: %s Templates: %v\n", t.Default, t.Lobby, t.Templates)
		}
	}
}

// dumpPlots печатает сохранённый реестр мира
func dumpPlots(ctx context.Context, cfg storage.Config, worldID string) error {
	// plotd хранит состояние в общей базе мира; BadgerDB нельзя открыть, пока plotd запущен
	var db *badger.DB
	if cfg.Backend == storage.BackendBadger {
		var err error
		if db, err = storage.OpenBadger(cfg.DataDir); err != nil {
			return err
		}
		defer db.Close()
	}

	store, err := storage.Open(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer store.Close()

	data, ok, err := store.Load(ctx, worldID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("📭 World %s has no saved plots\n", worldID)
		return nil
	}

	registry := plot.NewRegistry(plot.Options{WorldID: worldID})
	if err := registry.Unmarshal(data); err != nil {
		return err
	}
	cursor := registry.Cursor()
	fmt.Printf("🏝️ World %s: %d plots, spacing %d, ring %d, cursor (%d,%d) y=%d\n",
		worldID, registry.Len(), cursor.Spacing, cursor.Layer, cursor.X, cursor.Z, cursor.Y)
	for _, p := range registry.List() {
		marker := ""
		if p.IsLobby() {
			marker = " (lobby)"
		}
		fmt.Printf("  %s %-20s %s%s\n", p.Owner, p.Name, p.Spawn, marker)
	}
	return nil
}

// mintToken выпускает токен оператора без входа через API
func mintToken(secret, username string, admin bool, ttl time.Duration) error {
	if secret == "" {
		return fmt.Errorf("secret is required (-secret or PLOTS_JWT_SECRET)")
	}
	issuer, err := auth.NewTokenIssuer(secret, ttl)
	if err != nil {
		return err
	}
	token, expires, err := issuer.Issue(&auth.Operator{Username: username, IsAdmin: admin})
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires: %s\n", expires.UTC().Format(timeFormat))
	return nil
}

// hashPassword печатает bcrypt-хеш для auth.operators[].password_hash
func hashPassword(password string) error {
	if password == "" {
		return fmt.Errorf("usage: plot-cli -cmd hash <password>")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
