package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/config"
	"github.com/jmcleod/ironca/storage"
	bboltstorage "github.com/jmcleod/ironca/storage/bbolt"
	"github.com/jmcleod/ironca/storage/filesystem"
	"github.com/jmcleod/ironca/storage/memory"
	pgstorage "github.com/jmcleod/ironca/storage/postgres"
)

// backend is an opened repository with its CRL number guard.
type backend struct {
	repo     storage.Repository
	counters storage.CounterCache
	close    func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return &backend{
			repo:     memory.NewRepository(),
			counters: storage.NewMemoryCounterCache(),
			close:    func() error { return nil },
		}, nil

	case config.BackendPostgres:
		repo, err := pgstorage.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		counters, err := pgstorage.NewCounterCache(ctx, repo.Pool())
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("opening CRL number cache: %w", err)
		}
		return &backend{
			repo:     repo,
			counters: counters,
			close:    func() error { repo.Close(); return nil },
		}, nil

	case config.BackendBolt, config.BackendFilesystem:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		counterDB, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "crlnumber.db"), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open CRL number cache: %w", err)
		}
		counters, err := bboltstorage.NewCounterCache(counterDB.DB())
		if err != nil {
			counterDB.Close()
			return nil, fmt.Errorf("failed to open CRL number cache: %w", err)
		}

		if cfg.Backend == config.BackendFilesystem {
			repo, err := filesystem.NewOsRepository(filepath.Join(cfg.DataDir, "ssl"))
			if err != nil {
				counterDB.Close()
				return nil, err
			}
			return &backend{repo: repo, counters: counters, close: counterDB.Close}, nil
		}

		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "ironca.db"), nil)
		if err != nil {
			counterDB.Close()
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		return &backend{
			repo:     repo,
			counters: counters,
			close: func() error {
				counterDB.Close()
				return repo.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// openAuthority opens the configured backend and returns an Authority over
// it. The caller must call the returned close function.
func openAuthority(ctx context.Context, passphrase string) (*ca.Authority, func() error, error) {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.AuthorityOptions()
	if err != nil {
		b.close()
		return nil, nil, err
	}
	opts = append(opts,
		ca.WithCounterCache(b.counters),
		ca.WithLogger(logger),
	)
	if passphrase != "" {
		opts = append(opts, ca.WithPassphrase(passphrase))
	}
	return ca.New(b.repo, caID, opts...), b.close, nil
}
