package backtest

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"bookreplay/internal/catalog"
	"bookreplay/internal/inference"
	"bookreplay/internal/ops"
	"bookreplay/internal/source"
)

// OpenSource builds the snapshot source configured by cfg.
func OpenSource(cfg *ops.Config) (source.Source, error) {
	switch cfg.Data.Format {
	case ops.DataFormatTape:
		return source.NewTapeSource(cfg.Data.Dir, cfg.Data.Filter), nil
	case ops.DataFormatJSONL, "":
		fs, err := source.NewFileSource(cfg.Data.Dir, cfg.Data.Filter)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, errors.Errorf("unknown data format %q", cfg.Data.Format)
	}
}

// LoadScorers loads the holdout file of every model slot.
func LoadScorers(cfg *ops.Config) (map[string]inference.Scorer, error) {
	scorers := make(map[string]inference.Scorer, len(cfg.Models))
	for _, m := range cfg.Models {
		s, err := inference.LoadHoldout(m.Holdout)
		if err != nil {
			return nil, err
		}
		logs.Infof("model slot %s loaded %d markets from %s", m.Slot, s.Markets(), m.Holdout)
		scorers[m.Slot] = s
	}
	return scorers, nil
}

// OpenCatalog returns the configured catalog, nil when none is configured.
func OpenCatalog(cfg *ops.Config) (catalog.Catalog, func() error, error) {
	switch cfg.Catalog.Driver {
	case ops.CatalogSQLite:
		c, err := catalog.OpenSQLite(cfg.Catalog.Path, cfg.Catalog.Table)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case ops.CatalogPostgres:
		c, err := catalog.OpenPostgres(cfg.Catalog.Postgres, cfg.Catalog.Table)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, func() error { return nil }, nil
	}
}

// Universe lists the markets to replay: every market of the source, narrowed
// to the catalog when one is given.
func Universe(ctx context.Context, src source.Source, cat catalog.Catalog) ([]string, error) {
	ids, err := src.Markets(ctx)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return catalog.Sorted(ids), nil
	}
	allowed, err := cat.MarketIDs(ctx)
	if err != nil {
		return nil, err
	}
	if allowed == nil {
		allowed = []string{}
	}
	restricted := catalog.Restrict(catalog.Sorted(ids), allowed)
	logs.Infof("catalog keeps %d of %d markets", len(restricted), len(ids))
	return restricted, nil
}
