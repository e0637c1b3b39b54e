package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fatih/color"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/brewradar/coffeescan/internal/artifactstore"
	"github.com/brewradar/coffeescan/internal/config"
	"github.com/brewradar/coffeescan/internal/fetcher"
	"github.com/brewradar/coffeescan/internal/fetcher/guard"
	"github.com/brewradar/coffeescan/internal/imagepipeline"
	"github.com/brewradar/coffeescan/internal/llm"
	"github.com/brewradar/coffeescan/internal/metrics"
	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/net/budget"
	"github.com/brewradar/coffeescan/internal/net/circuit"
	"github.com/brewradar/coffeescan/internal/net/ratelimit"
	"github.com/brewradar/coffeescan/internal/normalizer"
	"github.com/brewradar/coffeescan/internal/orchestrator"
	"github.com/brewradar/coffeescan/internal/pipeline"
	"github.com/brewradar/coffeescan/internal/secrets"
	"github.com/brewradar/coffeescan/internal/validator"
	"github.com/brewradar/coffeescan/internal/writepath"
)

const (
	appName    = "coffeescan"
	secretsEnv = "COFFEESCAN"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	out := newRedactWriter(os.Stderr, secrets.NewRedactor())
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Coffee product scraping pipeline",
		Version: "v1.0.0",
		RunE:    runServe,
	}
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to config.yaml")
	rootCmd.PersistentFlags().String("roasters", "roasters.yaml", "Path to roasters.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and worker pool",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	roastersPath, _ := cmd.Flags().GetString("roasters")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	roasters, err := config.LoadRoasters(roastersPath)
	if err != nil {
		return fmt.Errorf("loading roasters: %w", err)
	}
	for i := range roasters {
		if roasters[i].AlertDeltaPct <= 0 {
			roasters[i].AlertDeltaPct = cfg.Alerts.PriceDeltaPct
		}
	}

	creds, err := secrets.Load(ctx, secrets.NewEnvProvider(secretsEnv))
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", creds.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)

	metricsReg := metrics.New(prometheus.DefaultRegisterer)
	color.New(color.FgGreen).Fprintf(os.Stderr, "%s starting: %d roasters configured\n", appName, len(roasters))

	registry := orchestrator.NewRoasterRegistry(roasters)
	queue := orchestrator.NewQueue()
	jobStore := orchestrator.NewMemoryJobStore()

	clientCfg := fetcher.ClientConfig{
		UserAgent:      cfg.Fetch.UserAgent,
		ConnectTimeout: cfg.Fetch.ConnectTimeout,
		ReadTimeout:    cfg.Fetch.ReadTimeout,
		TotalDeadline:  cfg.Fetch.TotalDeadline,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
	}
	httpClient := fetcher.NewClient(clientCfg)

	rateManager := ratelimit.NewManager(ratelimit.Config{RPS: 2, Burst: 4})
	circuitManager := guard.NewCircuitManager(guard.CircuitConfig{})
	fallbackBudgets := budget.NewManager(budget.PeriodMonthly, 0, 0.8)

	guards := make(map[string]*guard.Guard, len(roasters))
	for _, r := range roasters {
		guards[r.ID] = guard.New(r.ID, guard.Config{
			RateLimit:    ratelimit.Config{RPS: 2, Burst: 4},
			Circuit:      guard.CircuitConfig{},
			PITTTL:       cfg.LLM.CacheTTL,
			PoliteDelay:  time.Duration(cfg.Fetch.PoliteDelayMs) * time.Millisecond,
			PoliteJitter: time.Duration(cfg.Fetch.PoliteJitterMs) * time.Millisecond,
			MaxAttempts:  cfg.Retry.MaxAttempts,
			BaseDelay:    cfg.Retry.BaseDelay,
			JitterPct:    cfg.Retry.JitterPct,
		}, rateManager, circuitManager)
		fallbackBudgets.AddRoaster(r.ID, r.FallbackLeft)
	}

	fetch := fetcher.New(fetcher.Config{
		Client:         clientCfg,
		MaxPagesPerRun: cfg.Fetch.MaxPagesPerRun,
	}, guards, nil, fallbackBudgets)

	robots := newRobotsChecker(httpClient, clientCfg, cfg.Fetch.UserAgent, registry)

	val := validator.New(validator.ModeWarn)

	var resolver normalizer.LLMResolver
	if cfg.LLM.EnabledGlobal {
		llmClient := llm.NewClient(llm.ClientConfig{Endpoint: cfg.LLM.Endpoint, APIKey: creds.LLMAPIKey, Model: cfg.LLM.Model})
		llmCache := llm.NewMemoryCache(10_000)
		dailyBudget := budget.NewTracker("llm", budget.PeriodDaily, cfg.LLM.DailyBudget, cfg.LLM.BudgetResetHour, 0.8)
		llmBreaker := circuit.NewBreaker(circuit.Config{FailureThreshold: 5, RequestTimeout: 10 * time.Second})
		resolver = llm.NewResolver(llmClient, llmCache, rateManager, dailyBudget, llmBreaker, llm.Config{CacheTTL: cfg.LLM.CacheTTL})
	}
	normConfig := normalizer.Config{ConfidenceFloors: cfg.LLM.FieldConfidenceFloors}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.S3AccessKeyID, creds.S3SecretKey, "")),
	)
	if err != nil {
		return fmt.Errorf("loading aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) { u.PartSize = 5 * 1024 * 1024 })
	cdnClient := imagepipeline.NewCDNClient(imagepipeline.CDNConfig{
		Bucket:    os.Getenv(secretsEnv + "_S3_BUCKET"),
		KeyPrefix: "images",
		PublicURL: os.Getenv(secretsEnv + "_CDN_PUBLIC_URL"),
	}, uploader)
	// Layer 3 of spec §4.6's three-layer price-only image guard: this CDN
	// client only ever serves the full-refresh write path (price-only jobs
	// never build CanonicalImages and are stopped earlier by layers 1 and
	// 2), so it's guarded fixed at JobFullRefresh.
	guardedCDN := imagepipeline.NewGuardedCDNClient(cdnClient, imagepipeline.NewGuard(model.JobFullRefresh))
	hashIndex := newSQLHashIndex(db, 5*time.Second)
	images := imagepipeline.New(guardedCDN, hashIndex, httpClient, imagepipeline.Config{
		MaxConcurrentUploads: cfg.Image.Concurrency,
		MaxImageBytes:        cfg.Image.MaxBytes,
	})

	repo := writepath.NewPostgresRepo(db, 5*time.Second)
	wp := writepath.New(repo, images, writepath.LogAlerter{})

	artifactDir := os.Getenv(secretsEnv + "_ARTIFACT_DIR")
	if artifactDir == "" {
		artifactDir = "artifacts"
	}
	artifacts, err := artifactstore.Open(artifactDir)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}

	dispatcher := &pipeline.Dispatcher{
		FullRefresh: &pipeline.FullRefreshRunner{
			Fetcher:    fetch,
			Store:      artifacts,
			Validator:  val,
			NormConfig: normConfig,
			Resolver:   resolver,
			WritePath:  wp,
		},
		PriceOnly: &pipeline.PriceOnlyRunner{
			Fetcher:   fetch,
			WritePath: wp,
			Queue:     queue,
		},
	}

	writeBreaker := circuit.NewBreaker(circuit.Config{
		FailureThreshold: 10,
		RequestTimeout:   30 * time.Second,
		InitialCooldown:  5 * time.Second,
		MaxCooldown:      5 * time.Minute,
	})
	pool := orchestrator.NewWorkerPool(queue, dispatcher, registry, jobStore, writeBreaker, cfg.Worker.GlobalConcurrency)
	scheduler := orchestrator.NewScheduler(queue, registry, robots)

	metricsSrv := &http.Server{Addr: ":9090", Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	go syncGuardTelemetry(ctx, metricsReg, registry, guards)

	scheduler.Start()
	pool.Start(ctx)
	log.Info().Int("roasters", len(roasters)).Int("workers", cfg.Worker.GlobalConcurrency).Msg("coffeescan serving")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	scheduler.Stop()
	pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsSrv.Shutdown(shutdownCtx)
}

// syncGuardTelemetry periodically exports every roaster's guard telemetry
// snapshot and active-roaster count into the metrics registry, since
// guard.Telemetry is a plain atomic counter set with no exporter of its
// own.
func syncGuardTelemetry(ctx context.Context, m *metrics.Registry, registry *orchestrator.RoasterRegistry, guards map[string]*guard.Guard) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for roasterID, g := range guards {
				m.SyncGuardTelemetry(roasterID, g.Telemetry())
			}
			m.ActiveRoasters.Set(float64(len(registry.ListActive())))
		}
	}
}

// redactWriter scrubs credential-shaped substrings out of every log line
// before it reaches the underlying writer, so a DSN or API key that ends
// up in an error string never lands in the log output.
type redactWriter struct {
	out      io.Writer
	redactor *secrets.Redactor
}

func newRedactWriter(out io.Writer, redactor *secrets.Redactor) *redactWriter {
	return &redactWriter{out: out, redactor: redactor}
}

func (w *redactWriter) Write(p []byte) (int, error) {
	scrubbed := w.redactor.RedactString(string(p))
	if _, err := w.out.Write([]byte(scrubbed)); err != nil {
		return 0, err
	}
	return len(p), nil
}
