package ops

import (
	"os"
	"strings"

	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"bookreplay/internal/catalog"
	"bookreplay/internal/decision"
	"bookreplay/internal/matching"
	"bookreplay/internal/middleware"
	"bookreplay/internal/risk"
	"bookreplay/internal/source"
	"bookreplay/pkg/conn"
	"bookreplay/pkg/exception"
)

// Executor selects how chunks are isolated from each other.
type Executor string

const (
	ExecutorInProcess Executor = "inprocess"
	ExecutorProcess   Executor = "process"
)

// DataFormat selects the snapshot source implementation.
type DataFormat string

const (
	DataFormatJSONL DataFormat = "jsonl"
	DataFormatTape  DataFormat = "tape"
)

// CatalogDriver selects where the market universe is read from.
type CatalogDriver string

const (
	CatalogNone     CatalogDriver = ""
	CatalogSQLite   CatalogDriver = "sqlite"
	CatalogPostgres CatalogDriver = "postgres"
)

const (
	defaultWorkers         = 1
	defaultMarketsPerChunk = 100
	defaultResultsPattern  = "results/results-{chunk}.csv"
	defaultResultsMerged   = "results/results.csv"
)

// Config mirrors the YAML config layout.
type Config struct {
	Workers         int      `yaml:"workers"`
	MarketsPerChunk int      `yaml:"markets_per_chunk"`
	Executor        Executor `yaml:"executor"`

	Data       DataConfig        `yaml:"data"`
	Results    ResultsConfig     `yaml:"results"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	Middleware middleware.Config `yaml:"middleware"`
	Models     []ModelConfig     `yaml:"models"`
	Strategies StrategiesConfig  `yaml:"strategies"`
	Risk       risk.Config       `yaml:"risk"`
	Matching   matching.Config   `yaml:"matching"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Pyroscope  PyroscopeConfig   `yaml:"pyroscope"`
}

// DataConfig locates the recorded snapshots.
type DataConfig struct {
	Dir    string        `yaml:"dir"`
	Format DataFormat    `yaml:"format"`
	Filter source.Filter `yaml:"filter"`
}

// ResultsConfig locates the per-chunk and merged result logs.
type ResultsConfig struct {
	// Pattern is the per-chunk path, {chunk} is replaced by the chunk index.
	Pattern string `yaml:"pattern"`
	Merged  string `yaml:"merged"`
}

// CatalogConfig restricts the replay to markets listed in a database table.
type CatalogConfig struct {
	Driver   CatalogDriver `yaml:"driver"`
	Path     string        `yaml:"path"`
	Postgres conn.Option   `yaml:"postgres"`
	Table    catalog.Table `yaml:"table"`
}

// ModelConfig binds a precomputed prediction file to a prediction slot.
type ModelConfig struct {
	Slot    string `yaml:"slot"`
	Holdout string `yaml:"holdout"`
}

// StrategiesConfig lists the strategy instances to run.
type StrategiesConfig struct {
	EVBack    []decision.EVBackConfig    `yaml:"ev_back"`
	PriceBand []decision.PriceBandConfig `yaml:"price_band"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// PyroscopeConfig enables continuous profiling.
type PyroscopeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
	App     string `yaml:"app"`
}

// Load reads a YAML config file and expands ${VAR} environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	return &cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.MarketsPerChunk <= 0 {
		c.MarketsPerChunk = defaultMarketsPerChunk
	}
	if c.Executor == "" {
		c.Executor = ExecutorInProcess
	}
	if c.Data.Format == "" {
		c.Data.Format = DataFormatJSONL
	}
	if c.Results.Pattern == "" {
		c.Results.Pattern = defaultResultsPattern
	}
	if c.Results.Merged == "" {
		c.Results.Merged = defaultResultsMerged
	}
	if c.Pyroscope.App == "" {
		c.Pyroscope.App = "bookreplay"
	}
	c.Middleware = c.Middleware.WithDefaults()
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Wrapf(exception.ErrInvalidArgument, "config: "+format, args...)
	}

	switch c.Executor {
	case ExecutorInProcess, ExecutorProcess:
	default:
		return invalid("unknown executor %q", c.Executor)
	}
	if c.Data.Dir == "" {
		return invalid("data.dir is empty")
	}
	switch c.Data.Format {
	case DataFormatJSONL, DataFormatTape:
	default:
		return invalid("unknown data.format %q", c.Data.Format)
	}
	if c.Results.Pattern == c.Results.Merged {
		return invalid("results.pattern and results.merged must differ")
	}

	switch c.Catalog.Driver {
	case CatalogNone:
	case CatalogSQLite:
		if c.Catalog.Path == "" {
			return invalid("catalog.path is empty")
		}
	case CatalogPostgres:
		if c.Catalog.Postgres.Empty() {
			return invalid("catalog.postgres is empty")
		}
	default:
		return invalid("unknown catalog.driver %q", c.Catalog.Driver)
	}

	slots := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if strings.TrimSpace(m.Slot) == "" {
			return invalid("model slot is empty")
		}
		if _, ok := slots[m.Slot]; ok {
			return invalid("model slot %q bound twice", m.Slot)
		}
		if m.Holdout == "" {
			return invalid("model %q has no holdout file", m.Slot)
		}
		slots[m.Slot] = struct{}{}
	}

	names := make(map[string]struct{})
	checkStrategy := func(name string, w decision.Window, used ...string) error {
		if _, ok := names[name]; ok {
			return invalid("strategy name %q used twice", name)
		}
		names[name] = struct{}{}
		if w.EntryFrom < w.EntryTo {
			return invalid("strategy %q window entry_from %v before entry_to %v", name, w.EntryFrom, w.EntryTo)
		}
		for _, slot := range used {
			if _, ok := slots[slot]; !ok {
				return invalid("strategy %q reads unbound slot %q", name, slot)
			}
		}
		return nil
	}
	for i, s := range c.Strategies.EVBack {
		if s.Name == "" {
			s.Name = "ev_back"
			c.Strategies.EVBack[i].Name = s.Name
		}
		if len(s.Slots) == 0 {
			return invalid("strategy %q has no slots", s.Name)
		}
		if err := checkStrategy(s.Name, s.Window, s.Slots...); err != nil {
			return err
		}
	}
	for i, s := range c.Strategies.PriceBand {
		if s.Name == "" {
			s.Name = "price_band"
			c.Strategies.PriceBand[i].Name = s.Name
		}
		if err := checkStrategy(s.Name, s.Window, s.Slot); err != nil {
			return err
		}
	}

	if err := c.Middleware.Validate(); err != nil {
		return errors.Wrapf(exception.ErrInvalidArgument, "config: middleware: %s", err.Error())
	}
	if c.Matching.Commission < 0 || c.Matching.Commission >= 1 {
		return invalid("matching.commission %v out of [0, 1)", c.Matching.Commission)
	}
	if c.Pyroscope.Enabled && c.Pyroscope.Server == "" {
		return invalid("pyroscope.server is empty")
	}
	return nil
}

// BuildStrategies builds fresh strategy instances, so every chunk owns its own.
func (c *Config) BuildStrategies() []decision.Strategy {
	out := make([]decision.Strategy, 0, len(c.Strategies.EVBack)+len(c.Strategies.PriceBand))
	for _, s := range c.Strategies.EVBack {
		out = append(out, decision.NewEVBack(s))
	}
	for _, s := range c.Strategies.PriceBand {
		out = append(out, decision.NewPriceBand(s))
	}
	return out
}
