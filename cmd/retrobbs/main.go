package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/retrobbs/retrobbs/internal/ai"
	"github.com/retrobbs/retrobbs/internal/auth"
	"github.com/retrobbs/retrobbs/internal/bbs"
	"github.com/retrobbs/retrobbs/internal/config"
	"github.com/retrobbs/retrobbs/internal/db"
	"github.com/retrobbs/retrobbs/internal/door"
	"github.com/retrobbs/retrobbs/internal/mcpserver"
	"github.com/retrobbs/retrobbs/internal/notify"
	"github.com/retrobbs/retrobbs/internal/render"
	"github.com/retrobbs/retrobbs/internal/sysop"
	"github.com/retrobbs/retrobbs/internal/web"
	"github.com/retrobbs/retrobbs/internal/ws"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "retrobbs",
		Short: "A retro BBS with live notifications, door games, and an AI SysOp",
		RunE:  run,
	}

	f := rootCmd.PersistentFlags()
	f.String("board-name", "RETROBBS", "board name shown on the login banner")
	f.Int("port", 8080, "HTTP port for the API and websocket endpoint")
	f.Int("telnet-port", 2323, "TCP port for terminal sessions (0 disables)")
	f.String("db-path", "retrobbs.db", "path to the sqlite database")
	f.String("jwt-secret", "", "HMAC secret for websocket auth tokens")
	f.String("model", "claude-sonnet-4-20250514", "model for the AI SysOp and doors")
	f.Int("ai-retry-attempts", 2, "retries after a failed AI call")
	f.Bool("ai-fallbacks", true, "serve canned responses when the AI is unavailable")
	f.Int("door-idle-minutes", 10, "minutes before an idle door session times out")
	f.Int("page-timeout-seconds", 5, "seconds to wait for the SysOp to answer a page")
	f.Int("max-subscriptions", 50, "max event subscriptions per client")
	f.Int("subscribes-per-minute", 10, "subscribe requests allowed per client per minute")
	f.Int("events-per-minute", 100, "events delivered per client per minute")
	f.Int("heartbeat-seconds", 30, "websocket ping interval")
	f.Int("ws-idle-seconds", 60, "websocket idle timeout")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text or json)")

	// Viper keys use underscores so they match the env var suffix after
	// stripping the RETROBBS_ prefix.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("board_name", "board-name")
	bindFlag("port", "port")
	bindFlag("telnet_port", "telnet-port")
	bindFlag("db_path", "db-path")
	bindFlag("jwt_secret", "jwt-secret")
	bindFlag("model", "model")
	bindFlag("ai_retry_attempts", "ai-retry-attempts")
	bindFlag("ai_fallbacks", "ai-fallbacks")
	bindFlag("door_idle_minutes", "door-idle-minutes")
	bindFlag("page_timeout_seconds", "page-timeout-seconds")
	bindFlag("max_subscriptions", "max-subscriptions")
	bindFlag("subscribes_per_minute", "subscribes-per-minute")
	bindFlag("events_per_minute", "events-per-minute")
	bindFlag("heartbeat_seconds", "heartbeat-seconds")
	bindFlag("ws_idle_seconds", "ws-idle-seconds")
	bindFlag("log_level", "log-level")
	bindFlag("log_format", "log-format")

	viper.SetEnvPrefix("RETROBBS")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP stdio server exposing board operations as tools",
		RunE:  runMCP,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// buildBoard wires the shared stack: database, broker, doors, and the
// AI SysOp.
func buildBoard(cfg config.Config, logger *logrus.Logger) (*db.DB, *notify.Broker, *door.Manager, *sysop.SysOp, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open database: %w", err)
	}

	broker := notify.NewBroker(cfg.MaxSubscriptions, logger)

	aiSvc := ai.NewService(ai.NewAnthropicProvider(cfg.Model), ai.ServiceConfig{
		RetryAttempts:   cfg.AIRetryAttempts,
		RetryDelay:      time.Second,
		EnableFallbacks: cfg.AIFallbacks,
	}, logger)

	doors := door.NewManager(database.DoorSessions(), broker,
		time.Duration(cfg.DoorIdleMinutes)*time.Minute, logger)
	doors.RegisterDoor(door.NewOracle(aiSvc, logger))

	so := sysop.New(aiSvc, time.Duration(cfg.PageTimeoutSeconds)*time.Second, logger)

	return database, broker, doors, so, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := newLogger(cfg)

	banner := color.New(color.FgCyan, color.Bold)
	banner.Printf("%s %s\n", cfg.BoardName, config.Version)
	fmt.Printf("  HTTP:        :%d\n", cfg.Port)
	if viper.GetInt("telnet_port") > 0 {
		fmt.Printf("  Telnet:      :%d\n", viper.GetInt("telnet_port"))
	}
	fmt.Printf("  Database:    %s\n", cfg.DBPath)
	fmt.Printf("  Model:       %s\n", cfg.Model)
	fmt.Printf("  Door idle:   %dm\n", cfg.DoorIdleMinutes)
	fmt.Println()

	if cfg.JWTSecret == "" {
		color.Yellow("warning: no --jwt-secret set, websocket auth will reject all tokens")
	}

	database, broker, doors, so, err := buildBoard(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close() //nolint:errcheck

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	wsHandler := ws.NewHandler(broker, verifier, doors, ws.Config{
		HeartbeatInterval:   time.Duration(cfg.HeartbeatSeconds) * time.Second,
		IdleTimeout:         time.Duration(cfg.WSIdleSeconds) * time.Second,
		SubscribesPerMinute: cfg.SubscribesPerMinute,
		EventsPerMinute:     cfg.EventsPerMinute,
	}, logger)

	webServer := web.New(cfg.Port, broker, doors, so, database, wsHandler, logger)
	go func() {
		if err := webServer.Start(); err != nil {
			logger.WithError(err).Error("http server failed")
		}
	}()

	termSvc := bbs.NewService(cfg.BoardName, render.NewService(false), broker, doors, so, database, logger)
	var telnet *bbs.TelnetServer
	if port := viper.GetInt("telnet_port"); port > 0 {
		telnet = bbs.NewTelnetServer(termSvc, database, port, logger)
		go func() {
			if err := telnet.Start(); err != nil {
				logger.WithError(err).Error("telnet server failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("shutting down")

	broker.BroadcastToAuthenticated(notify.NewEvent(notify.EventSystemShutdown, notify.ShutdownPayload{
		Message: "The board is going down for maintenance. NO CARRIER",
	}))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if telnet != nil {
		if err := telnet.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("telnet shutdown")
		}
	}
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := newLogger(cfg)
	// MCP talks JSON-RPC on stdout; logs must stay on stderr.
	logger.SetOutput(os.Stderr)

	database, broker, doors, so, err := buildBoard(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close() //nolint:errcheck

	return mcpserver.NewServer(broker, doors, so, database, logger).Run(cmd.Context())
}
