package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hpungsan/nounimaging/internal/config"
	"github.com/hpungsan/nounimaging/internal/db"
	"github.com/hpungsan/nounimaging/internal/logging"
	"github.com/hpungsan/nounimaging/internal/ops"
	"github.com/hpungsan/nounimaging/internal/storage"
)

const metricsNamespace = "nounimaging"

// runtime owns the process-wide collaborators. Fields left nil are built on
// first use; tests preset them.
type runtime struct {
	dataDir string
	memory  bool

	cfg      *config.Config
	db       *sql.DB
	logger   *slog.Logger
	registry *prometheus.Registry
	store    storage.ObjectStore

	stdout io.Writer
	stderr io.Writer

	reconciler *ops.Reconciler
	locks      *ops.RunLocks
	ownsDB     bool
}

func defaultDataDir() (string, error) {
	if dir := os.Getenv("NOUNIMAGING_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".nounimaging"), nil
}

// open loads config, logger and database unless already set.
func (rt *runtime) open(dataDir, configPath string) error {
	if rt.stdout == nil {
		rt.stdout = os.Stdout
	}
	if rt.stderr == nil {
		rt.stderr = os.Stderr
	}
	if rt.dataDir == "" {
		if dataDir == "" {
			var err error
			if dataDir, err = defaultDataDir(); err != nil {
				return err
			}
		}
		rt.dataDir = dataDir
	}

	if rt.cfg == nil {
		cfg, err := config.LoadWithFile(rt.dataDir, configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		rt.cfg = cfg
	}

	if rt.logger == nil {
		logger, err := logging.New(logging.Options{
			Level:  rt.cfg.Log.Level,
			Format: rt.cfg.Log.Format,
			Writer: rt.stderr,
		})
		if err != nil {
			return err
		}
		rt.logger = logger
	}

	if rt.db == nil {
		database, err := db.Init(rt.dataDir)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db.ConfigurePool(database, rt.cfg)
		rt.db = database
		rt.ownsDB = true
	}
	return nil
}

func (rt *runtime) close() error {
	if rt.ownsDB && rt.db != nil {
		return rt.db.Close()
	}
	return nil
}

// metricsRegistry returns the registry shared by storage and run metrics.
func (rt *runtime) metricsRegistry() *prometheus.Registry {
	if rt.registry == nil {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return rt.registry
}

// objectStore builds the storage chain: backend, metrics, rate limit.
func (rt *runtime) objectStore() (storage.ObjectStore, error) {
	if rt.store != nil {
		return rt.store, nil
	}

	var backend storage.ObjectStore
	if rt.memory {
		rt.logger.Warn("using in-memory object store; nothing is persisted")
		backend = storage.NewMemStore()
	} else {
		expiry := time.Duration(rt.cfg.URLExpiryHours) * time.Hour
		m, err := storage.NewMinio(rt.cfg.S3, expiry)
		if err != nil {
			return nil, err
		}
		backend = m
	}

	obs, err := storage.NewPrometheusObserver(metricsNamespace, rt.metricsRegistry())
	if err != nil {
		return nil, err
	}
	rt.store = storage.RateLimited(
		storage.Instrumented(backend, obs),
		rt.cfg.StorageRatePerSecond,
		rt.cfg.StorageBurst,
	)
	return rt.store, nil
}

// runner returns the reconciler and the namespace locks.
func (rt *runtime) runner() (*ops.Reconciler, *ops.RunLocks, error) {
	if rt.reconciler == nil {
		store, err := rt.objectStore()
		if err != nil {
			return nil, nil, err
		}
		metrics, err := ops.NewRunMetrics(metricsNamespace, rt.metricsRegistry())
		if err != nil {
			return nil, nil, err
		}
		rt.reconciler = ops.NewReconciler(store, db.NewNounStore(rt.db), rt.cfg, ops.ReconcilerOptions{
			Logger:  rt.logger,
			Metrics: metrics,
		})
	}
	if rt.locks == nil {
		rt.locks = ops.NewRunLocks(rt.dataDir)
	}
	return rt.reconciler, rt.locks, nil
}
