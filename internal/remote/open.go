package remote

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	"github.com/fairyhunter13/pantry-pilot/internal/config"
	"github.com/fairyhunter13/pantry-pilot/internal/model"
	"github.com/fairyhunter13/pantry-pilot/internal/obs"
	"github.com/fairyhunter13/pantry-pilot/internal/remote/redisstore"
	"github.com/fairyhunter13/pantry-pilot/internal/remote/sheets"
	"github.com/fairyhunter13/pantry-pilot/internal/remote/sqlstore"
)

//go:embed seed/inventory.csv
var demoSeed []byte

// DemoTable is the bundled sample inventory used by the memory backend when
// no seed file is configured.
func DemoTable() model.Table {
	t, err := LoadCSV(bytes.NewReader(demoSeed))
	if err != nil {
		panic(fmt.Sprintf("bundled seed is invalid: %v", err))
	}
	return t
}

// CloseFunc releases whatever a backend holds open.
type CloseFunc func() error

func noopClose() error { return nil }

// Open builds the store selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config, logg *obs.Logger) (Store, CloseFunc, error) {
	ctx = logg.WithField(ctx, "backend", cfg.Store.Backend)
	switch cfg.Store.Backend {
	case config.BackendMemory, "":
		seed := DemoTable()
		if cfg.Store.MemorySeed != "" {
			t, err := LoadCSVFile(cfg.Store.MemorySeed)
			if err != nil {
				return nil, nil, fmt.Errorf("loading memory seed %s: %w", cfg.Store.MemorySeed, err)
			}
			seed = t
		}
		logg.Info(logg.WithField(ctx, "rows", len(seed.Rows)), "store_memory_seeded")
		return NewMemory(seed), noopClose, nil
	case config.BackendSheets:
		st, err := sheets.New(ctx, cfg.Sheets)
		if err != nil {
			return nil, nil, err
		}
		logg.Info(logg.WithField(ctx, "sheet", cfg.Sheets.SheetName), "store_sheets_ready")
		return st, noopClose, nil
	case config.BackendSQL:
		st, err := sqlstore.Open(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		logg.Info(logg.WithField(ctx, "driver", cfg.DB.Driver), "store_sql_ready")
		return st, st.Close, nil
	case config.BackendRedis:
		st, err := redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		logg.Info(logg.WithField(ctx, "key", cfg.Redis.Key), "store_redis_ready")
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
