package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/scangate/internal/decoding"
	"github.com/zombor/scangate/internal/gate"
	"github.com/zombor/scangate/internal/scanapi"
	"github.com/zombor/scangate/internal/station"
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

	fs := ff.NewFlagSet("scangate")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "scangate.db", "Station history database file path")
		archivePath   = fs.StringLong("archive", "./captures", "Directory for captures that could not be decoded")
		historyLimit  = fs.IntLong("history-limit", 1000, "History entries to keep, with their archived captures (0 keeps all)")
		apiURL        = fs.StringLong("api-url", "http://localhost:8090", "Portal base URL")
		kindName      = fs.StringLong("kind", "qr", "Scan kind: 'qr' or 'employee'")
		token         = fs.StringLong("token", "", "Operator session token")
		tokenFile     = fs.StringLong("token-file", "", "File holding the operator session token, re-read on every request")
		submitTimeout = fs.DurationLong("submit-timeout", scanapi.DefaultTimeout, "Timeout for one portal request")
		maxDimension  = fs.IntLong("max-dimension", decoding.DefaultMaxDimension, "Longest image side before decoding")
		vision        = fs.StringLong("vision", "none", "Vision fallback after local decoders: 'none', 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username for the station page (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password for the station page (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SCANGATE"),
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

	kind, err := scanapi.ParseKind(*kindName)
	if err != nil {
		slog.Error("Invalid scan kind", "kind", *kindName, "error", err)
		os.Exit(1)
	}

	// Initialize vision fallback
	var extra []decoding.Strategy
	switch *vision {
	case "none", "":
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini vision fallback...", "model", *geminiModel)
		g, err := decoding.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		defer g.Close()
		extra = append(extra, g)
	case "ollama":
		slog.Info("Initializing Ollama vision fallback...", "url", *ollamaURL, "model", *ollamaModel)
		o, err := decoding.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		defer o.Close()
		extra = append(extra, o)
	default:
		slog.Error("Invalid vision fallback", "vision", *vision, "valid", "none, gemini or ollama")
		os.Exit(1)
	}
	pipeline := decoding.NewPipeline(*maxDimension, extra...)
	slog.Info("Decode pipeline ready", "strategies", pipeline.Strategies(), "max_dimension", *maxDimension)

	// Initialize portal client
	var tokens scanapi.TokenSource = scanapi.StaticToken(*token)
	if *tokenFile != "" {
		tokens = scanapi.FileToken{Path: *tokenFile}
	}
	device := scanapi.DeviceInfo{
		UserAgent: "scangate/" + version,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Language:  stationLanguage(),
	}
	client := scanapi.NewClient(*apiURL, kind, tokens, device, *submitTimeout)

	// Initialize history and archive
	slog.Info("Initializing history database...")
	history, err := station.NewBoltHistory(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize history", "error", err)
		os.Exit(1)
	}
	defer history.Close()

	store, err := station.NewLocalStorage(*archivePath)
	if err != nil {
		slog.Error("Failed to initialize capture archive", "error", err)
		os.Exit(1)
	}

	session := gate.NewSession(pipeline, client)
	session.Observe(station.NewRecorder(history, store).WithRetention(*historyLimit))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := session.Refresh(ctx); err != nil {
		slog.Warn("Could not load scan totals; starting from zero", "error", err)
	}

	basicAuth := station.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := station.NewServer(session, history, store, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "portal", *apiURL, "kind", kind)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := serve(ctx, addr, server.Handler()); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shut down cleanly")
}

// stationLanguage reports the locale from the environment, defaulting to English
func stationLanguage() string {
	for _, key := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(key); v != "" {
			lang, _, _ := strings.Cut(v, ".")
			return strings.ReplaceAll(lang, "_", "-")
		}
	}
	return "en-US"
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight requests
func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
