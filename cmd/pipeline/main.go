package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"turbine-platform/internal/cache"
	"turbine-platform/internal/config"
	"turbine-platform/internal/influxdb"
	"turbine-platform/internal/kafka"
	"turbine-platform/internal/repository"
	"turbine-platform/internal/services"
	"turbine-platform/pkg/database"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

const version = "1.0.0"

type flags struct {
	dataDir string
	pattern string
	show    int
	sigma   float64
	policy  string
	noDB    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "pipeline [files...]",
		Short: "Run the turbine data quality pipeline",
		Long: "Reads turbine data files, separates malformed rows, imputes missing power output, " +
			"computes daily statistics per turbine and classifies readings as normal or anomalous. " +
			"Files given as arguments replace the data directory scan.",
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f.show < 0 {
				return errors.New("--show cannot be negative")
			}
			if cmd.Flags().Changed("sigma") && f.sigma <= 0 {
				return errors.New("--sigma must be positive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return errors.Wrap(err, "failed to load configuration")
			}
			f.apply(cmd, cfg)

			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, args)
		},
	}

	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "Directory containing turbine data files (default from PIPELINE_DATA_DIR)")
	cmd.Flags().StringVar(&f.pattern, "pattern", "", "Glob pattern of data files (default from PIPELINE_FILE_PATTERN)")
	cmd.Flags().IntVar(&f.show, "show", 5, "Rows of each result set to print")
	cmd.Flags().Float64Var(&f.sigma, "sigma", 0, "Deviations from the daily mean that make a reading anomalous")
	cmd.Flags().StringVar(&f.policy, "policy", "", "Classification of days without a deviation: normal or exact")
	cmd.Flags().BoolVar(&f.noDB, "no-db", false, "Do not persist results to PostgreSQL")

	return cmd
}

// apply overrides environment configuration with explicitly set flags
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("data-dir") {
		cfg.Pipeline.DataDir = f.dataDir
	}
	if changed("pattern") {
		cfg.Pipeline.FilePattern = f.pattern
	}
	if changed("show") {
		cfg.Pipeline.ShowRows = f.show
	}
	if changed("sigma") {
		cfg.Pipeline.DeviationSigma = f.sigma
	}
	if changed("policy") {
		cfg.Pipeline.UndefinedStdDevPolicy = f.policy
	}
	if f.noDB {
		cfg.Database.Enabled = false
	}
}

func run(ctx context.Context, cfg *config.Config, paths []string) error {
	logger, err := logging.NewStructuredLoggerWithOptions("turbine-pipeline", version, cfg.LoggerOptions())
	if err != nil {
		return errors.Wrap(err, "failed to create logger")
	}
	defer logger.Close()

	logger.Info(ctx, "[PIPELINE_CLI_START] Starting turbine pipeline", logging.Fields{
		"version":         version,
		"data_dir":        cfg.Pipeline.DataDir,
		"pattern":         cfg.Pipeline.FilePattern,
		"files":           paths,
		"deviation_sigma": cfg.Pipeline.DeviationSigma,
		"policy":          cfg.Pipeline.UndefinedStdDevPolicy,
		"database":        cfg.Database.Enabled,
		"redis":           cfg.Redis.Enabled,
		"kafka":           cfg.Kafka.Enabled,
		"influxdb":        cfg.InfluxDB.Enabled,
	})

	metricsCollector := metrics.NewCollector("turbine_pipeline")

	opts, err := cfg.PipelineOptions()
	if err != nil {
		return errors.Wrap(err, "invalid pipeline options")
	}

	sinks, closeSinks, err := openSinks(ctx, cfg, logger, metricsCollector)
	defer closeSinks()
	if err != nil {
		return err
	}

	svc := services.NewPipelineService(
		services.NewIngestionService(logger, metricsCollector),
		opts,
		logger,
		metricsCollector,
		sinks...,
	)

	pipelineRun, result, err := svc.Run(ctx, services.Source{
		Dir:     cfg.Pipeline.DataDir,
		Pattern: cfg.Pipeline.FilePattern,
		Paths:   paths,
	})
	if pipelineRun != nil {
		printReport(os.Stdout, pipelineRun, result, cfg.Pipeline.ShowRows)
	}
	if err != nil {
		return errors.Wrap(err, "pipeline run failed")
	}

	return nil
}

// openSinks connects every enabled result sink
// The returned close function is safe to call even when err is non-nil
func openSinks(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ([]services.ResultSink, func(), error) {
	var (
		sinks   []services.ResultSink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(cfg.PostgresConfig(), logger, metricsCollector)
		if err != nil {
			return nil, closeAll, errors.Wrap(err, "failed to connect to database")
		}
		closers = append(closers, func() { db.Close() })
		repo := repository.NewTurbineRepository(db, logger, metricsCollector, cfg.Database.BatchSize)
		sinks = append(sinks, services.NewRepositorySink(repo))
	}

	if cfg.Redis.Enabled {
		statsCache, err := cache.NewStatsCache(ctx, cfg.CacheOptions(), logger)
		if err != nil {
			return nil, closeAll, errors.Wrap(err, "failed to connect to redis")
		}
		closers = append(closers, func() { statsCache.Close() })
		sinks = append(sinks, statsCache)
	}

	if cfg.InfluxDB.Enabled {
		influx, err := influxdb.NewClient(ctx, cfg.InfluxConfig(), logger)
		if err != nil {
			return nil, closeAll, errors.Wrap(err, "failed to connect to influxdb")
		}
		closers = append(closers, influx.Close)
		sinks = append(sinks, influx)
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, cfg.ProducerConfig(), logger)
		if err != nil {
			return nil, closeAll, errors.Wrap(err, "failed to connect to kafka")
		}
		closers = append(closers, func() { producer.Close() })
		sinks = append(sinks, producer)
	}

	if len(sinks) == 0 {
		logger.Warn(ctx, "[PIPELINE_CLI_NO_SINKS] No result sinks enabled, results are printed only", logging.Fields{})
	}

	return sinks, closeAll, nil
}
