// Hearth is a natural-language front end for the home: calendar, mail,
// lights and alarms driven by a chat model over WebSocket.
//
// Usage:
//
//	hearth serve              Start the HTTP and WebSocket server
//	hearth init [dir]         Write an example hearth.yaml
//	hearth ask <text>         Run one chat turn and print the reply
//	hearth version            Print version and build information
//	hearth -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nugget/hearth/internal/api"
	"github.com/nugget/hearth/internal/buildinfo"
	"github.com/nugget/hearth/internal/config"
	"github.com/nugget/hearth/internal/journal"
	"github.com/nugget/hearth/internal/mqtt"
	"github.com/nugget/hearth/internal/orchestrator"
	"github.com/nugget/hearth/internal/transport"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the testable entry point. Arguments are parsed by hand so that
// no package-level flag state leaks between calls.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: hearth ask <text>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Current()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	fmt.Fprintf(w, "  %-12s %s\n", "go_version:", info.GoVersion)
	fmt.Fprintf(w, "  %-12s %s\n", "platform:", info.Platform)
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Hearth - natural-language home assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: hearth [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the HTTP and WebSocket server")
	fmt.Fprintln(w, "  init [dir]   Write an example hearth.yaml (default: .)")
	fmt.Fprintln(w, "  ask <text>   Run one chat turn and print the reply")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment from ./.env is loaded before the config is read.")
	return nil
}

// runAsk runs a single chat turn against an in-memory conversation.
// Actions are executed for real.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg)

	c, err := newCore(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	res := c.orch.Chat(ctx, orchestrator.Request{
		ConversationID: "cli",
		Text:           strings.Join(args, " "),
		Interim: func(msg string) {
			if outputFmt == "text" {
				fmt.Fprintln(stdout, msg)
			}
		},
	})

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(stdout, res.Content)
	}
	if res.Type == orchestrator.TypeError {
		return errors.New("ask: turn ended in error")
	}
	return nil
}

// runServe is the primary operating mode. Shutdown on SIGINT or SIGTERM
// closes WebSocket sessions, publishes MQTT offline, then drains HTTP.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, cfg)
	logger.Info("starting Hearth", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"conversation_mode", cfg.Conversation.Mode,
		"lighting", cfg.Lighting.Backend,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	journalStore, err := journal.Open(cfg.DatabasePath(), logger.With("component", "journal"))
	if err != nil {
		return err
	}
	defer journalStore.Close()

	c, err := newCore(ctx, cfg, logger, journalStore)
	if err != nil {
		return err
	}
	defer c.Close()

	sessions := transport.NewManager(transport.Options{
		Chatter:     c.orch,
		ChatEvents:  c.orch.Events(),
		AlarmEvents: c.alarms.Events(),
		Mode:        cfg.Conversation.Mode,
		SharedID:    cfg.Conversation.SharedID,
		Logger:      logger.With("component", "transport"),
	})

	var announcer *mqtt.Announcer
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		announcer = mqtt.New(cfg.MQTT, instanceID, logger.With("component", "mqtt"))
		sub := c.alarms.Events().Subscribe(16)
		go func() {
			defer c.alarms.Events().Unsubscribe(sub)
			if err := announcer.Run(ctx, sub); err != nil {
				logger.Error("mqtt announcer failed", "error", err)
			}
		}()
		logger.Info("mqtt alarm announcer enabled", "broker", cfg.MQTT.Broker, "topic_prefix", cfg.MQTT.TopicPrefix)
	} else {
		logger.Info("mqtt announcer disabled (not configured)")
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, c.orch, cfg.Conversation.SharedID, logger.With("component", "api"))
	server.SetSessions(sessions)
	server.SetAlarms(c.alarms)
	server.SetJournal(journalStore)
	server.SetConversations(c.orch.Conversations())
	if c.hue != nil {
		server.SetHue(c.hue)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sessions.Close()
		if announcer != nil {
			if err := announcer.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Hearth stopped")
	return nil
}

// newLogger builds the configured logger. Config validation has already
// rejected unknown levels.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}

// loadConfig reads ./.env if present, then locates and parses the YAML
// configuration.
func loadConfig(explicit string) (*config.Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}

	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
