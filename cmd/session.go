package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sarpras-dashboard/sarpras-sync/config"
	"github.com/sarpras-dashboard/sarpras-sync/entity"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/mapping"
	"github.com/sarpras-dashboard/sarpras-sync/metrics"
	"github.com/sarpras-dashboard/sarpras-sync/pipeline"
	"github.com/sarpras-dashboard/sarpras-sync/source"
	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/store/memstore"
	"github.com/sarpras-dashboard/sarpras-sync/store/postgres"
	"github.com/sarpras-dashboard/sarpras-sync/store/postgrest"
)

// session is everything one driver run needs.
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	state    *pipeline.State
	profiles *mapping.ProfileRegistry
	mappers  *entity.Registry
	runner   *pipeline.Runner
	overlay  *memstore.Overlay
	close    func() error
}

// openSession loads configuration first, so a bad environment fails
// before any network I/O. needStore is false for drivers that never touch
// the backing store.
func openSession(cmd *cobra.Command, driver string, needStore bool) (*session, error) {
	opts := config.Options{}
	if needStore {
		opts.Store = storeKind
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID), zap.String("driver", driver))

	profiles, err := loadProfiles()
	if err != nil {
		return nil, err
	}
	mappers, err := entity.NewRegistry(profiles)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		logger:   logger,
		state:    pipeline.NewState(runID, driver),
		profiles: profiles,
		mappers:  mappers,
		close:    func() error { return nil },
	}

	var st store.Store = memstore.New()
	if needStore {
		switch cfg.Store {
		case config.StorePostgres:
			pg, err := postgres.Open(cfg.DatabaseURL, requestTimeout, logger)
			if err != nil {
				return nil, err
			}
			st, s.close = pg, pg.Close
		default:
			st = postgrest.New(cfg.SupabaseURL, cfg.ServiceKey,
				postgrest.WithTimeout(requestTimeout),
				postgrest.WithLogger(logger),
			)
		}
		if dryRun {
			s.overlay = memstore.NewOverlay(st)
			st = s.overlay
			logger.Info("dry run: writes are kept in memory")
		}
	}

	s.runner = pipeline.New(st, mappers, logger,
		pipeline.WithParallel(parallel),
		pipeline.WithOutput(cmd.OutOrStdout()),
	)
	return s, nil
}

// finish prints the summary, writes metrics and releases the store. It
// runs on every exit path of a driver.
func (s *session) finish(cmd *cobra.Command, runErr error) error {
	err := s.runner.Finish(s.state, runErr)
	if s.overlay != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "dry run, nothing written:\n%s", s.overlay.Writes)
	}
	if mErr := metrics.WriteTextfile(metricsFile); mErr != nil {
		s.logger.Warn("metrics not written", zap.Error(mErr))
	}
	if cErr := s.close(); cErr != nil {
		s.logger.Warn("closing store", zap.Error(cErr))
	}
	_ = s.logger.Sync()
	return err
}

func loadProfiles() (*mapping.ProfileRegistry, error) {
	profiles, err := mapping.NewProfileRegistry()
	if err != nil {
		return nil, err
	}
	if dir := mapping.DefaultProfileDir(); dir != "" {
		if err := profiles.LoadFromDirectory(dir); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

// fetchSources reads the selected catalog datasets.
func (s *session) fetchSources(ctx context.Context) ([]source.Document, error) {
	mode, err := source.ParseMode(sourceMode)
	if err != nil {
		return nil, err
	}
	catalog, err := source.LoadCatalog(catalogFile)
	if err != nil {
		return nil, err
	}
	catalog = catalog.WithBaseURL(s.cfg.SourceBaseURL)
	srcs, err := catalog.Select(datasets)
	if err != nil {
		return nil, err
	}

	fetcher := source.NewFetcher(catalog, mode,
		source.WithDataDir(dataDir),
		source.WithTimeout(requestTimeout),
		source.WithLogger(s.logger),
	)
	docs := fetcher.FetchAll(ctx, srcs)

	available := 0
	for _, d := range docs {
		if d.Err == nil {
			available++
		}
	}
	if available == 0 {
		return docs, errors.New("no source could be read")
	}
	return docs, nil
}

// readInput parses one local document for the upsert drivers.
func readInput(path, formatName, sheet, jenjang string) (source.Document, error) {
	if path == "" {
		return source.Document{}, errors.New("--input is required")
	}
	records, shape, err := source.ParseFile(path, formatName, sheet)
	if err != nil {
		return source.Document{}, err
	}
	level := hub.ParseJenjang(jenjang)
	if jenjang != "" && level == hub.JenjangUnknown {
		return source.Document{}, fmt.Errorf("unknown jenjang %q", jenjang)
	}
	return source.Document{
		Source:  source.Source{Name: filepath.Base(path), Jenjang: string(level), File: path},
		Records: records,
		Shape:   shape,
		Origin:  source.OriginLocal,
	}, nil
}
