package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mattjoyce/reviewsheet/internal/config"
	"github.com/mattjoyce/reviewsheet/internal/doctor"
	"github.com/mattjoyce/reviewsheet/internal/extract"
	"github.com/mattjoyce/reviewsheet/internal/ipallow"
	"github.com/mattjoyce/reviewsheet/internal/log"
	"github.com/mattjoyce/reviewsheet/internal/preview"
	"github.com/mattjoyce/reviewsheet/internal/sink"
	"github.com/mattjoyce/reviewsheet/internal/telemetry"
	"github.com/mattjoyce/reviewsheet/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	// A missing .env is normal; real environment variables always win.
	_ = godotenv.Load()
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- VERBS ---
	case "start":
		return runStart(args)
	case "preview":
		if hasHelpFlag(args) {
			printPreviewHelp()
			return 0
		}
		return runPreview(args)
	case "version":
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
		fmt.Fprintln(os.Stderr, "Usage: reviewsheet version [--json]")
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

	fmt.Printf("reviewsheet %s\n", info.Version)
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
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
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
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`reviewsheet - Record approved GitHub pull request reviews in a spreadsheet

Usage:
  reviewsheet <noun> <action> [flags]

System Commands:
  system start      Start the webhook receiver in foreground

Config Commands:
  config check      Validate configuration and report problems
  config lock       Record the config file hash in .checksums

Tools:
  preview           Extract a row from a saved delivery payload

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Configuration is read from --config, $REVIEWSHEET_CONFIG, ./config.yaml or
~/.config/reviewsheet/config.yaml. With no file, the WEBHOOK_SECRET,
SPREADSHEET_ID, RANGE_, EXTRACT and CONCAT_CHAR environment variables are used.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
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

func printSystemNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: reviewsheet system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: reviewsheet config <action>")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printSystemStartHelp() {
	fmt.Println("Usage: reviewsheet system start [--config PATH]")
	fmt.Println("Start the webhook receiver and append approved reviews until interrupted.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: reviewsheet config check [--config PATH] [--strict] [--json]")
	fmt.Println("Validate configuration and report errors and warnings.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: reviewsheet config lock [--config PATH] [--dry-run]")
	fmt.Println("Record the BLAKE3 hash of the config file in .checksums next to it.")
}

func printPreviewHelp() {
	fmt.Println("Usage: reviewsheet preview --payload FILE [--config PATH | --fields SPEC] [--separator SEP] [--json]")
	fmt.Println("Run the field spec against a saved delivery payload. Use - to read stdin.")
}

// loadConfig resolves the configuration from an explicit path, a discovered
// file, or the environment, in that order.
func loadConfig(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		configPath = config.DiscoverConfigPath()
	}
	if configPath == "" {
		cfg, err := config.LoadFromEnv()
		return cfg, "environment", err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, cfg.SourceFile, nil
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("reviewsheet starting", "version", version, "config", source)

	shutdownTracer, err := telemetry.InitTracer(cfg.Service.Name, cfg.Service.Tracing, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhook", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rows, err := sink.Open(ctx, cfg.Sink)
	if err != nil {
		logger.Error("failed to open sink", "kind", cfg.Sink.Kind, "error", err)
		return 1
	}
	defer rows.Close()
	logger.Info("sink opened", "kind", cfg.Sink.Kind)

	var ips ipallow.Checker
	if cfg.IPAllowlist.Enabled {
		ips = ipallow.NewMetaChecker(cfg.IPAllowlist.MetaURL, cfg.IPAllowlist.Key, &http.Client{
			Timeout:   cfg.IPAllowlist.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
		logger.Info("sender IP allow-list enabled", "meta_url", cfg.IPAllowlist.MetaURL, "key", cfg.IPAllowlist.Key)
	}

	webhookLogger := log.WithComponent("webhook")
	handler := webhook.NewHandler(webhookConfig, rows, ips, webhookLogger)
	server := webhook.New(webhookConfig, handler, webhookLogger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	logger.Info("reviewsheet running (press Ctrl+C to stop)",
		"listen", webhookConfig.Listen,
		"path", webhookConfig.Path,
		"fields", webhookConfig.Fields.String(),
	)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		// Wait for in-flight deliveries before the sink closes.
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("webhook server shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("reviewsheet stopped")
	return 0
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&dryRun, "dry-run", false, "Compute the hash without writing .checksums")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if configPath == "" {
		configPath = config.DiscoverConfigPath()
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "No config file found; nothing to lock in environment mode")
		return 1
	}

	report, err := config.Lock(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if report.Written {
		fmt.Printf("Locked %s\n", report.ConfigPath)
	} else {
		fmt.Printf("Dry run: %s not written\n", report.ChecksumPath)
	}
	fmt.Printf("  blake3: %s\n", report.Hash)
	return 0
}

func runPreview(args []string) int {
	var configPath, payloadPath, fields, separator string
	var jsonOut bool

	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&payloadPath, "payload", "", "Saved delivery payload (- for stdin)")
	fs.StringVar(&fields, "fields", "", "Field spec (overrides config)")
	fs.StringVar(&separator, "separator", "", "Separator joining paths in one cell")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if payloadPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --payload is required")
		printPreviewHelp()
		return 1
	}

	if fields == "" {
		cfg, _, err := loadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
			return 1
		}
		fields = cfg.Extract.Fields
		if separator == "" {
			separator = cfg.Extract.Separator
		}
	}
	if separator == "" {
		separator = extract.DefaultSeparator
	}

	spec, err := extract.ParseSpec(fields)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid field spec: %v\n", err)
		return 1
	}

	data, err := readPayload(payloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}

	result, err := preview.Run(spec, separator, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Preview failed: %v\n", err)
		return 1
	}

	if jsonOut {
		out, err := preview.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(preview.FormatHuman(result))
	}

	if result.Error != "" {
		return 1
	}
	return 0
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
