package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/slipwayci/slipway/internal/application/deploy"
	"github.com/slipwayci/slipway/internal/application/executor"
	"github.com/slipwayci/slipway/internal/application/orchestrator"
	"github.com/slipwayci/slipway/internal/application/pipeline"
	"github.com/slipwayci/slipway/internal/config"
	"github.com/slipwayci/slipway/internal/specfile"
	dockerbuild "github.com/slipwayci/slipway/pkg/adapters/build/docker"
	memorycache "github.com/slipwayci/slipway/pkg/adapters/cache/memory"
	rediscache "github.com/slipwayci/slipway/pkg/adapters/cache/redis"
	"github.com/slipwayci/slipway/pkg/adapters/cluster/kubectl"
	"github.com/slipwayci/slipway/pkg/adapters/creds/envprovider"
	memoryevents "github.com/slipwayci/slipway/pkg/adapters/events/memory"
	redisevents "github.com/slipwayci/slipway/pkg/adapters/events/redis"
	"github.com/slipwayci/slipway/pkg/adapters/metrics/prometheus"
	execrunner "github.com/slipwayci/slipway/pkg/adapters/runner/exec"
	memorystorage "github.com/slipwayci/slipway/pkg/adapters/storage/memory"
	redisstorage "github.com/slipwayci/slipway/pkg/adapters/storage/redis"
	"github.com/slipwayci/slipway/pkg/api/http"
	"github.com/slipwayci/slipway/pkg/api/websocket"
	"github.com/slipwayci/slipway/pkg/domain"
	"github.com/slipwayci/slipway/pkg/ports"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "slipway",
		Short:         "Monorepo CI/CD pipeline orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRunCmd builds the one-shot command: load a spec file, execute the
// run to completion and exit with a code reflecting the verdict.
func newRunCmd() *cobra.Command {
	var (
		specPath    string
		branch      string
		commit      string
		event       string
		environment string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a run from a spec file and report the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := initLogger(cfg.LogLevel)
			defer func() { _ = logger.Sync() }()

			spec, err := specfile.Load(specPath)
			if err != nil {
				return err
			}
			if environment != "" {
				spec.Environment = environment
			}

			trigger, err := buildTrigger(branch, commit, event)
			if err != nil {
				return err
			}

			deps, err := buildDeps(cfg, logger)
			if err != nil {
				return err
			}
			defer deps.close(logger)

			result, err := deps.manager.Execute(cmd.Context(), spec, trigger)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Println(string(out))

			_ = logger.Sync()
			os.Exit(exitCode(result.Verdict))
			return nil
		},
	}

	cmd.Flags().StringVar(&specPath, "spec", "slipway.yaml", "path to the run spec file")
	cmd.Flags().StringVar(&branch, "branch", "", "branch the run was triggered from")
	cmd.Flags().StringVar(&commit, "commit", "", "commit SHA the run was triggered for")
	cmd.Flags().StringVar(&event, "event", domain.TriggerEventManual, "trigger event: push, pull_request or manual")
	cmd.Flags().StringVar(&environment, "environment", "", "override the spec's target environment")
	_ = cmd.MarkFlagRequired("commit")
	_ = cmd.MarkFlagRequired("branch")

	return cmd
}

// newServeCmd builds the long-running control plane: HTTP API, WebSocket
// event stream and Prometheus metrics.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator as an HTTP control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := initLogger(cfg.LogLevel)
			defer func() { _ = logger.Sync() }()

			logger.Info("starting slipway",
				zap.String("version", Version),
				zap.String("build_time", BuildTime))

			deps, err := buildDeps(cfg, logger)
			if err != nil {
				return err
			}
			defer deps.close(logger)

			httpServer := http.NewServer(&http.Config{
				Port:         cfg.HTTPPort,
				Orchestrator: deps.manager,
				Logger:       logger,
			})

			wsHandler := websocket.NewHandler(deps.events, logger)
			httpServer.SetupWebSocket(wsHandler)

			go func() {
				if err := httpServer.Start(); err != nil {
					logger.Fatal("HTTP server failed", zap.Error(err))
				}
			}()

			logger.Info("slipway started",
				zap.Int("http_port", cfg.HTTPPort),
				zap.Int64("max_concurrent_pipelines", cfg.Pipelines.MaxConcurrent))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			logger.Info("received shutdown signal")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", zap.Error(err))
			}

			if err := deps.manager.Shutdown(shutdownCtx); err != nil {
				logger.Error("orchestrator shutdown error", zap.Error(err))
			}

			logger.Info("slipway shut down complete")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slipway %s (built %s)\n", Version, BuildTime)
		},
	}
}

// deps bundles the wired application components.
type deps struct {
	manager *orchestrator.Manager
	events  ports.EventBus
	redis   *goredis.Client
}

// buildDeps wires adapters and application components. With Redis
// disabled the in-memory adapters back the cache, run store and event
// bus, which is the natural shape for one-shot runs.
func buildDeps(cfg *config.Config, logger *zap.Logger) (*deps, error) {
	var (
		cache       ports.ArtifactCache
		store       ports.RunStore
		events      ports.EventBus
		redisClient *goredis.Client
	)

	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		cache = rediscache.NewArtifactCache(redisClient, cfg.Cache.TTL, logger)
		store = redisstorage.NewRunStore(redisClient, 24*time.Hour, logger)

		bus, err := redisevents.NewStreamsEventBus(
			redisClient,
			"slipway-consumers",
			fmt.Sprintf("slipway-%d", os.Getpid()),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		events = bus
	} else {
		cache = memorycache.NewArtifactCache(cfg.Cache.Capacity)
		store = memorystorage.NewRunStore()
		events = memoryevents.NewEventBus()
	}

	metricsCollector := prometheus.NewCollector()
	runner := execrunner.NewRunner()
	builder := dockerbuild.NewBackend(logger)
	cluster := kubectl.NewBackend(logger)
	creds := envprovider.NewProvider()

	stageExecutor := executor.New(
		cache,
		runner,
		builder,
		creds,
		metricsCollector,
		logger,
		cfg.Pipelines.MaxRetries,
		cfg.Pipelines.RetryDelay,
	)

	deployController := deploy.NewController(
		cluster,
		creds,
		events,
		metricsCollector,
		logger,
		cfg.Deploy.PollInterval,
		cfg.Deploy.StabilityTimeout,
		cfg.Deploy.RollbackEnabled,
	)

	servicePipeline := pipeline.New(stageExecutor, deployController, events, logger)

	manager := orchestrator.NewManager(
		servicePipeline,
		cache,
		store,
		events,
		metricsCollector,
		orchestrator.NewValidator(),
		logger,
		cfg.Pipelines.MaxConcurrent,
		cfg.Timeouts.RunTimeout,
	)

	return &deps{
		manager: manager,
		events:  events,
		redis:   redisClient,
	}, nil
}

func (d *deps) close(logger *zap.Logger) {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}
}

// buildTrigger assembles the trigger context from CLI flags.
func buildTrigger(branch, commit, event string) (domain.TriggerContext, error) {
	switch event {
	case domain.TriggerEventPush, domain.TriggerEventPullRequest, domain.TriggerEventManual:
	default:
		return domain.TriggerContext{}, fmt.Errorf("unknown trigger event %q", event)
	}

	return domain.TriggerContext{
		Branch: branch,
		Commit: commit,
		Event:  event,
	}, nil
}

// exitCode maps the run verdict onto the process exit code so CI
// wrappers can branch on partial failures.
func exitCode(verdict domain.Verdict) int {
	switch verdict {
	case domain.VerdictSuccess:
		return 0
	case domain.VerdictPartialFailure:
		return 2
	default:
		return 1
	}
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
