// Package cmd provides CLI commands for sarpras.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sarpras-dashboard/sarpras-sync/pipeline"
	"github.com/sarpras-dashboard/sarpras-sync/source"
)

// Flags shared by every driver.
var (
	sourceMode     string
	onlyEntities   []string
	datasets       []string
	dataDir        string
	catalogFile    string
	storeKind      string
	dryRun         bool
	requestTimeout time.Duration
	metricsFile    string
	parallel       int
)

func newLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "json" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	// stdout is reserved for summaries
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config.Build()
}

var rootCmd = &cobra.Command{
	Use:   "sarpras",
	Short: "Reconcile school facility datasets into the sarpras database",
	Long: `Sarpras reads the per-jenjang school facility datasets (PAUD, SD, SMP,
PKBM), reconciles their inconsistent shapes into canonical records and
syncs them into the backing store.

Every driver prints one "entity=<name> OK=n SKIP=n FAIL=n" line per entity
before it exits.

Environment:
  SUPABASE_URL               (or VITE_SUPABASE_URL, NEXT_PUBLIC_SUPABASE_URL)
  SUPABASE_SERVICE_ROLE_KEY  (or SUPABASE_SERVICE_KEY, SERVICE_ROLE_KEY, SUPABASE_SECRET_KEY)
  DATABASE_URL               (--store=postgres)
  SARPRAS_SOURCE_BASE_URL    remote dataset base URL
  LOG_LEVEL, LOG_FORMAT      debug|info|warn|error, console|json

Examples:
  sarpras ingest
  sarpras ingest --source=local --data-dir ./data --only class_condition,toilet --replace
  sarpras upsert -i smp.json --jenjang SMP --only laboratory
  sarpras export --out ./public/data --xlsx
  sarpras validate --source=local --data-dir ./data`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&sourceMode, "source", string(source.ModeRemote), "Where datasets are read from: remote or local")
	pf.StringSliceVar(&onlyEntities, "only", nil, "Entities to sync (default: all)")
	pf.StringSliceVar(&datasets, "dataset", nil, "Catalog datasets to read, by name or jenjang (default: all)")
	pf.StringVar(&dataDir, "data-dir", "data", "Local dataset root, also the cache for failed remote fetches")
	pf.StringVar(&catalogFile, "catalog", "", "Source catalog YAML (default: embedded)")
	pf.StringVar(&storeKind, "store", "postgrest", "Backing store: postgrest or postgres")
	pf.BoolVar(&dryRun, "dry-run", false, "Read from the store but keep every write in memory")
	pf.DurationVar(&requestTimeout, "timeout", source.DefaultTimeout, "Per-request timeout")
	pf.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	pf.IntVar(&parallel, "parallel", pipeline.DefaultParallel, "Tables synced concurrently")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(upsertGenericCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(profilesCmd)
}
