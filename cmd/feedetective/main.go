package main

import (
	"context"
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

	"github.com/feedetective/feedetective/internal/analysis"
	"github.com/feedetective/feedetective/internal/bill"
	"github.com/feedetective/feedetective/internal/scanning"
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

	fs := ff.NewFlagSet("feedetective")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "feedetective.db", "Upload registry database file path")
		catalogPath = fs.StringLong("catalog", "", "Fee catalog YAML path (default: built-in catalog)")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		apiKey      = fs.StringLong("api-key", "", "API key required in X-API-Key header (optional)")
		ratePerMin  = fs.IntLong("rate-limit", 20, "Requests per minute allowed per client IP")
		retention   = fs.DurationLong("retention", time.Hour, "How long uploads are kept before being swept")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("FEEDETECTIVE"),
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

	// Load fee catalog
	var catalog *analysis.Catalog
	var err error
	if *catalogPath != "" {
		slog.Info("Loading fee catalog...", "path", *catalogPath)
		catalog, err = analysis.LoadCatalog(*catalogPath)
	} else {
		catalog, err = analysis.DefaultCatalog()
	}
	if err != nil {
		slog.Error("Failed to load fee catalog", "error", err)
		os.Exit(1)
	}

	// Initialize upload registry
	slog.Info("Initializing upload registry...")
	registry, err := bill.NewBoltRegistry(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize upload registry", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		key := *geminiKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		if key == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(key, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize service
	classifier := analysis.NewClassifier(catalog)
	detector := analysis.NewDetector(catalog)
	billService := bill.NewService(registry, scanner, classifier, detector, *retention)

	// Start background sweeper for expired uploads
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go billService.RunSweeper(ctx, 5*time.Minute)

	// Initialize server
	limiter := bill.NewRateLimiter(*ratePerMin)
	server := bill.NewServer(billService, *apiKey, limiter)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *apiKey != "" {
		slog.Info("API key auth enabled")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
