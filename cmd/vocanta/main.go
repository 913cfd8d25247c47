// Command vocanta is the main entry point for the vocanta answer server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vocanta/vocanta/internal/config"
	"github.com/vocanta/vocanta/internal/fetch"
	"github.com/vocanta/vocanta/internal/health"
	"github.com/vocanta/vocanta/internal/observe"
	"github.com/vocanta/vocanta/internal/orchestrator"
	"github.com/vocanta/vocanta/internal/resilience"
	"github.com/vocanta/vocanta/internal/server"
	"github.com/vocanta/vocanta/internal/tenant"
	"github.com/vocanta/vocanta/pkg/blobcache"
	"github.com/vocanta/vocanta/pkg/kmsearch"
	"github.com/vocanta/vocanta/pkg/provider/tts/ssml"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocanta: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocanta: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("vocanta starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "vocanta",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── AWS clients ───────────────────────────────────────────────────────────
	var awsOpts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		return 1
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)

	// ── Pipeline dependencies ─────────────────────────────────────────────────
	tenants := tenant.NewCache(tenant.NewDynamo(dynamoClient, cfg.AWS.TenantTable))
	fetcher := fetch.New()

	var audioCache *blobcache.Cache
	if cfg.AWS.AudioCacheBucket != "" {
		audioCache = blobcache.New(blobcache.NewS3(s3Client, cfg.AWS.AudioCacheBucket))
		slog.Info("audio cache enabled", "bucket", cfg.AWS.AudioCacheBucket)
	} else {
		slog.Info("audio cache disabled")
	}

	orch := orchestrator.New(orchestrator.Deps{
		Tenants:       tenants,
		Fetcher:       fetcher,
		Search:        resilience.NewSearcher(kmsearch.NewClient(cfg.KMSearch.BaseURL), resilience.CircuitBreakerConfig{}),
		Patterns:      ssml.NewPatternCache(fetcher),
		AudioCache:    audioCache,
		Metrics:       metrics,
		AzureRegion:   cfg.TTS.AzureRegion,
		KMResultLimit: cfg.Pipeline.EffectiveKMResultLimit(),
		Timeout:       cfg.Pipeline.EffectiveSessionTimeout(),
	})

	checkers := []health.Checker{
		health.TableChecker(dynamoClient, cfg.AWS.TenantTable),
	}
	if cfg.AWS.AudioCacheBucket != "" {
		checkers = append(checkers, health.BucketChecker(s3Client, cfg.AWS.AudioCacheBucket))
	}

	srv := server.New(orch, health.New(checkers...), metrics)

	printStartupSummary(cfg)

	// ── HTTP server ───────────────────────────────────────────────────────────
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.TLS != nil {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         vocanta — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("AWS region", cfg.AWS.Region)
	printRow("Tenant table", cfg.AWS.TenantTable)
	if cfg.AWS.AudioCacheBucket != "" {
		printRow("Audio cache", cfg.AWS.AudioCacheBucket)
	} else {
		printRow("Audio cache", "(disabled)")
	}
	printRow("Azure region", cfg.TTS.AzureRegion)
	printRow("KM search", cfg.KMSearch.BaseURL)
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	} else {
		printRow("TLS", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", name, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
