package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-anomaly/internal/anomaly"
	"github.com/zombor/invoice-anomaly/internal/narrative"
	"github.com/zombor/invoice-anomaly/internal/scan"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	defaults := scan.DefaultConfig()
	thresholds := anomaly.DefaultThresholds()

	fs := ff.NewFlagSet("anomaly-scan")
	var (
		port             = fs.IntLong("port", 8080, "HTTP server port")
		dbPath           = fs.StringLong("db", "invoice-anomaly.db", "Database file path")
		seedPath         = fs.StringLong("seed", "", "JSON snapshot to import before serving (optional)")
		jwtSecret        = fs.StringLong("jwt-secret", "", "HS256 secret for bearer tokens (required)")
		issueToken       = fs.StringLong("issue-token", "", "Print a 24h bearer token for this user id and exit")
		logLevel         = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		windowDays       = fs.IntLong("window-days", defaults.WindowDays, "Only scan invoices dated within this many days")
		narratorType     = fs.StringLong("narrator", "none", "Narrative provider: 'none', 'gemini' or 'ollama'")
		narrativeTimeout = fs.DurationLong("narrative-timeout", defaults.NarrativeTimeout, "Timeout for the narrative call")
		geminiKey        = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel      = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL        = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel      = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")

		duplicateWindow  = fs.IntLong("duplicate-window-days", thresholds.DuplicateWindowDays, "Max days between duplicate invoices")
		duplicateTol     = fs.Float64Long("duplicate-tolerance", thresholds.DuplicateTolerance, "Max amount difference for duplicates")
		roundUnit        = fs.IntLong("round-number-unit", int(thresholds.RoundNumberUnit), "Amounts that are multiples of this are flagged as round")
		outlierSigma     = fs.Float64Long("outlier-sigma", thresholds.OutlierSigma, "Standard deviations from the vendor mean that count as an outlier")
		outlierMinSample = fs.IntLong("outlier-min-sample", thresholds.OutlierMinSample, "Minimum invoices per vendor for outlier detection")
		vendorMultiplier = fs.Float64Long("unusual-vendor-multiplier", thresholds.UnusualVendorMultiplier, "Multiple of the average amount that flags a first-time vendor")

		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("ANOMALY_SCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	initLogger(*logLevel)

	if *jwtSecret == "" {
		slog.Error("JWT secret is required. Set --jwt-secret flag or ANOMALY_SCAN_JWT_SECRET environment variable")
		os.Exit(1)
	}
	auth := scan.NewAuthenticator(*jwtSecret)

	if *issueToken != "" {
		token, err := auth.IssueToken(*issueToken, 24*time.Hour)
		if err != nil {
			slog.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := scan.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *seedPath != "" {
		slog.Info("Importing seed snapshot...", "path", *seedPath)
		snapshot, err := scan.LoadSnapshot(*seedPath)
		if err != nil {
			slog.Error("Failed to load seed snapshot", "error", err)
			os.Exit(1)
		}
		if err := db.Import(snapshot); err != nil {
			slog.Error("Failed to import seed snapshot", "error", err)
			os.Exit(1)
		}
	}

	// Initialize narrator based on type
	var narrator narrative.Narrator
	switch *narratorType {
	case "none", "":
		slog.Info("Narrative generation disabled")
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini narrator...", "model", *geminiModel)
		gemini, err := narrative.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		narrator = gemini
	case "ollama":
		slog.Info("Initializing Ollama narrator...", "url", *ollamaURL, "model", *ollamaModel)
		ollama, err := narrative.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		narrator = ollama
	default:
		slog.Error("Invalid narrator type", "type", *narratorType, "valid", "none, gemini or ollama")
		os.Exit(1)
	}
	if narrator != nil {
		defer narrator.Close()
	}

	config := scan.Config{
		WindowDays:       *windowDays,
		NarrativeTimeout: *narrativeTimeout,
		NarrativeLimit:   defaults.NarrativeLimit,
		Thresholds: anomaly.Thresholds{
			DuplicateWindowDays:     *duplicateWindow,
			DuplicateTolerance:      *duplicateTol,
			RoundNumberUnit:         int64(*roundUnit),
			OutlierSigma:            *outlierSigma,
			OutlierMinSample:        *outlierMinSample,
			UnusualVendorMultiplier: *vendorMultiplier,
		},
	}
	service := scan.NewService(db, narrator, config)
	server := scan.NewServer(service, auth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// initLogger installs a JSON slog handler at the requested level
func initLogger(levelName string) {
	var level slog.Level
	valid := true
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
		valid = false
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	if !valid {
		slog.Warn("Invalid log level, defaulting to info", "configured", levelName)
	}
}
