package backend

import (
	"context"
	"fmt"
	"os"

	"mysokha/internal/drafts"
	"mysokha/internal/log"
	"mysokha/internal/storage"
	"mysokha/internal/store"
	"mysokha/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.SeedFile != "" {
		n, err := Seed(ctx, res.Store, config.SeedFile, config.Paths)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("seed store: %w", err)
		}
		f.logger.Info("Seed import finished", "seed_file", config.SeedFile, log.FieldCount, n)
	}
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"schema_version", repo.SchemaVersion(),
		"app_id", config.Paths.AppID)

	return &BackendResult{
		Store:   repo,
		Slots:   repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data" // Default directory
	}

	st, err := memory.NewFromFiles(ctx, dataDir, config.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory store: %w", err)
	}

	var slots drafts.Slot = drafts.NewMemorySlot()
	if config.DraftsDir != "" {
		fs, err := drafts.NewFileSlot(config.DraftsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open drafts directory: %w", err)
		}
		slots = fs
	}

	f.logger.Info("Initialized memory backend",
		"data_directory", dataDir,
		"drafts_dir", config.DraftsDir,
		"app_id", config.Paths.AppID)

	return &BackendResult{
		Store: st,
		Slots: slots,
		Ping:  func(context.Context) error { return nil },
	}, nil
}

// Seed imports a JSON export into st when st has no expenses yet. It returns
// the number of records written.
func Seed(ctx context.Context, st store.Store, file string, paths store.Paths) (int, error) {
	existing, err := st.Snapshot(ctx, paths.Expenses())
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	fh, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	tree, err := store.ReadExport(fh)
	if err != nil {
		return 0, err
	}
	return store.Import(ctx, st, tree, paths.All())
}
