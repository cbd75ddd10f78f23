package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/leasehook/internal/api"
	"github.com/mattjoyce/leasehook/internal/auth"
	"github.com/mattjoyce/leasehook/internal/config"
	"github.com/mattjoyce/leasehook/internal/enqueue"
	"github.com/mattjoyce/leasehook/internal/lock"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const defaultConfigPath = "config.yaml"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "tenant":
		return runTenantNoun(args)
	case "secret":
		return runSecretNoun(args)
	case "automation":
		return runAutomationNoun(args)
	case "payload":
		return runPayloadNoun(args)
	case "job":
		return runJobNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: leasehook version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("leasehook %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`leasehook - vendor webhook verification and automation dispatch

Usage:
  leasehook <noun> <action> [flags]

Nouns:
  system       Service lifecycle
  config       Configuration and integrity
  tenant       Tenant documents
  secret       Local secret versions
  automation   Automations outside of webhooks
  payload      Encoded payload chunks
  job          Queued automation jobs

Commands:
  system start        Start the webhook listener, dispatcher and API
  config check        Validate configuration and integrity hashes
  config lock         Record integrity hashes for the config directory
  tenant import       Create or replace a tenant document from JSON
  tenant show         Print a tenant document
  secret put          Store a new secret version
  automation run      Run an automation for one or more tenants
  payload inspect     Decode a tenant's prepared n1 payload
  job inspect         Show a job and its delivery attempts
  version             Print version information

Use "leasehook <noun> --help" for the actions of a noun.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: leasehook system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func runSystemNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			fmt.Fprintln(os.Stdout, "Usage: leasehook system start [--config PATH]")
			fmt.Fprintln(os.Stdout, "Runs the webhook listener, queue dispatcher and internal API in the foreground.")
			return 0
		}
		return runStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		printSystemNounHelp(os.Stderr)
		return 1
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath
	}
	return config.Load(path)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("leasehook starting", "version", version, "config", *configPath)
	logStartup(logger, cfg)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		logger.Error("failed to open state", "error", err)
		return 1
	}
	defer a.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	proc := a.processor()
	adapter := enqueue.NewAdapter(a.queue, cfg.Queue.MaxAttempts, "webhook")
	webhookServer := webhook.NewServer(webhook.ServerConfig{
		Listen:          cfg.Webhooks.Listen,
		MaxBodyBytes:    cfg.Webhooks.MaxBodyBytes,
		Vendors:         cfg.Webhooks.Vendors,
		ShutdownTimeout: cfg.Service.ShutdownTimeout,
	}, a.orchestrator(), adapter, log.WithComponent("webhook"))
	disp := a.dispatcher(proc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := webhookServer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("webhook: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := disp.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("dispatcher: %w", err)
		}
		return nil
	})

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
		}
		keys, err := auth.NewKeyring(cfg.API.Auth.APIKey, tokens)
		if err != nil {
			logger.Error("invalid api.auth configuration", "error", err)
			return 1
		}
		apiServer := api.New(api.Config{
			Listen:          cfg.API.Listen,
			Keys:            keys,
			ShutdownTimeout: cfg.Service.ShutdownTimeout,
		}, a.queue, proc, log.WithComponent("api"))
		g.Go(func() error {
			if err := apiServer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	} else if cfg.Queue.Delivery == "http" {
		logger.Warn("queue delivery is http but the local API is disabled; jobs go to an external push target", "push_url", cfg.Queue.PushURL)
	}

	logger.Info("leasehook running (press Ctrl+C to stop)")

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}
	logger.Info("leasehook stopped")
	return 0
}
