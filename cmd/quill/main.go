// Quill is a household conversational assistant daemon.
//
// It exposes an HTTP API for conversational turns with retrieval
// grounding, model routing, and tool-augmented web search, plus a
// WebSocket event stream and an optional MQTT notifier. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	quill serve                       Start the API server
//	quill adduser <name> <role>       Create a user and print its id
//	quill token <user-id>             Mint an API token for a user
//	quill version                     Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/quill-assistant/internal/api"
	"github.com/quillworks/quill-assistant/internal/auth"
	"github.com/quillworks/quill-assistant/internal/buildinfo"
	"github.com/quillworks/quill-assistant/internal/canned"
	"github.com/quillworks/quill-assistant/internal/chat"
	"github.com/quillworks/quill-assistant/internal/config"
	"github.com/quillworks/quill-assistant/internal/embeddings"
	"github.com/quillworks/quill-assistant/internal/events"
	"github.com/quillworks/quill-assistant/internal/knowledge"
	"github.com/quillworks/quill-assistant/internal/llm"
	"github.com/quillworks/quill-assistant/internal/mqtt"
	"github.com/quillworks/quill-assistant/internal/quota"
	"github.com/quillworks/quill-assistant/internal/router"
	"github.com/quillworks/quill-assistant/internal/search"
	"github.com/quillworks/quill-assistant/internal/store"
	"github.com/quillworks/quill-assistant/internal/titles"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so that the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the quill command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which interferes with calling run() concurrently from tests, and the
// argument surface is small enough that manual parsing is clearer.
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
	case "adduser":
		if len(cmdArgs) < 2 {
			return fmt.Errorf("usage: quill adduser <name> <director|member>")
		}
		return runAddUser(ctx, stdout, configPath, cmdArgs[0], cmdArgs[1])
	case "token":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: quill token <user-id>")
		}
		return runToken(ctx, stdout, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Quill - Household Conversational Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: quill [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                 Start the API server")
	fmt.Fprintln(w, "  adduser <name> <role> Create a user (role: director or member)")
	fmt.Fprintln(w, "  token <user-id>       Mint an API token (printed once, store it safely)")
	fmt.Fprintln(w, "  version               Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// runAddUser creates a user row and prints its generated id.
func runAddUser(ctx context.Context, stdout io.Writer, configPath, name, role string) error {
	if role != store.RoleDirector && role != store.RoleMember {
		return fmt.Errorf("unknown role %q (expected director or member)", role)
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	id := uuid.NewString()
	if err := st.CreateUser(ctx, store.User{ID: id, Name: name, Role: role}); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "created user %s (%s): %s\n", name, role, id)
	return nil
}

// runToken mints an API token for an existing user and prints it. The
// secret is bcrypt-hashed at rest; the full token is shown only here.
func runToken(ctx context.Context, stdout io.Writer, configPath, userID string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	if _, err := st.User(ctx, userID); err != nil {
		return fmt.Errorf("lookup user %s: %w", userID, err)
	}

	token, err := auth.Mint(ctx, st, userID)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	fmt.Fprintln(stdout, token)
	return nil
}

// runServe is the primary operating mode: load config, open the
// database, assemble the pipeline, start the API server and optional
// MQTT notifier, and block until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Quill", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"fast_model", cfg.Models.Fast,
		"capable_model", cfg.Models.Capable,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Persistence ---
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer st.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	// --- Persona ---
	var persona string
	if cfg.PersonaFile != "" {
		data, err := os.ReadFile(cfg.PersonaFile)
		if err != nil {
			return fmt.Errorf("read persona file: %w", err)
		}
		persona = strings.TrimSpace(string(data))
	}

	// --- Collaborators ---
	llmClient := llm.NewHTTPClient(cfg.Models.BaseURL)

	embClient := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})
	retriever := knowledge.NewRetriever(embClient, st, knowledge.DefaultTopK, logger)

	modelRouter := router.New(logger, router.Config{
		Fast:           cfg.Models.Fast,
		Capable:        cfg.Models.Capable,
		SimpleKeywords: cfg.Models.SimpleKeywords,
		ToolKeywords:   cfg.Models.ToolKeywords,
	})

	var searcher chat.Searcher
	if cfg.Search.URL != "" {
		mgr := search.NewManager(cfg.Search.Provider)
		mgr.Register(search.NewSearXNG(cfg.Search.URL))
		searcher = mgr
		logger.Info("search provider configured", "provider", cfg.Search.Provider, "url", cfg.Search.URL)
	} else {
		logger.Warn("no search provider configured, tool-augmented turns disabled")
	}

	bus := events.New()

	pipeline := chat.New(chat.Config{
		Store:     st,
		Matcher:   canned.NewMatcher(cfg.Canned.Answers),
		Retriever: retriever,
		Router:    modelRouter,
		LLM:       llmClient,
		Searcher:  searcher,
		Titles:    titles.New(llmClient, cfg.Models.Title, logger),
		Bus:       bus,
		Logger:    logger,
		Limits: quota.Limits{
			DirectorDaily: cfg.Quota.DirectorDaily,
			MemberDaily:   cfg.Quota.MemberDaily,
		},
		Persona: persona,
	})

	// --- MQTT notifier ---
	if cfg.MQTT.Enabled {
		notifier := mqtt.New(cfg.MQTT, bus, logger)
		go func() {
			if err := notifier.Start(ctx); err != nil {
				logger.Error("mqtt notifier failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := notifier.Stop(stopCtx); err != nil {
				logger.Warn("mqtt disconnect failed", "error", err)
			}
		}()
	}

	// --- API server ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, pipeline, auth.NewVerifier(st), bus, logger)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output goes through slog.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty that exact path is used; otherwise
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
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
