package config

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. It is built once at
// startup and passed by reference into each component; nothing reads
// configuration ambiently after Load returns.
type Config struct {
	Inputs   InputsConfig   `yaml:"inputs" mapstructure:"inputs"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Capital  CapitalConfig  `yaml:"capital" mapstructure:"capital"`
	Parks    ParksConfig    `yaml:"parks" mapstructure:"parks"`
	Weights  WeightsConfig  `yaml:"weights" mapstructure:"weights"`
	Indexes  []IndexSpec    `yaml:"indexes" mapstructure:"indexes"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputsConfig names the five input datasets.
type InputsConfig struct {
	Parks              string `yaml:"parks" mapstructure:"parks"`
	CapitalProjects    string `yaml:"capital_projects" mapstructure:"capital_projects"`
	HeatRaster         string `yaml:"heat_raster" mapstructure:"heat_raster"`
	CoastalRaster      string `yaml:"coastal_raster" mapstructure:"coastal_raster"`
	StormRaster        string `yaml:"storm_raster" mapstructure:"storm_raster"`
	HeatVulnerability  string `yaml:"heat_vulnerability" mapstructure:"heat_vulnerability"`
	FloodVulnerability string `yaml:"flood_vulnerability" mapstructure:"flood_vulnerability"`
}

// OutputConfig names the persisted artifacts.
type OutputConfig struct {
	GeoJSON string `yaml:"geojson" mapstructure:"geojson"`
}

// AnalysisConfig holds the working CRS and the zonal analysis parameters.
// Exactly one working CRS and one working resolution apply to every
// geometric operation within a run.
type AnalysisConfig struct {
	CRSName           string  `yaml:"crs_name" mapstructure:"crs_name"`
	Proj4             string  `yaml:"proj4" mapstructure:"proj4"`
	Resolution        float64 `yaml:"resolution" mapstructure:"resolution"`
	BufferFt          float64 `yaml:"buffer_ft" mapstructure:"buffer_ft"`
	BufferSegments    int     `yaml:"buffer_segments" mapstructure:"buffer_segments"`
	CutoffDate        string  `yaml:"cutoff_date" mapstructure:"cutoff_date"`
	OutlierPercentile float64 `yaml:"outlier_percentile" mapstructure:"outlier_percentile"`

	// Cutoff is CutoffDate parsed at Load time.
	Cutoff time.Time `yaml:"-" mapstructure:"-"`
}

// CapitalConfig maps the capital-project source fields.
type CapitalConfig struct {
	PhaseField     string   `yaml:"phase_field" mapstructure:"phase_field"`
	CompletedPhase string   `yaml:"completed_phase" mapstructure:"completed_phase"`
	TrackerField   string   `yaml:"tracker_field" mapstructure:"tracker_field"`
	DateField      string   `yaml:"date_field" mapstructure:"date_field"`
	DateLayout     string   `yaml:"date_layout" mapstructure:"date_layout"`
	FundingField   string   `yaml:"funding_field" mapstructure:"funding_field"`
	ConcatFields   []string `yaml:"concat_fields" mapstructure:"concat_fields"`
	TotalField     string   `yaml:"total_field" mapstructure:"total_field"`
}

// ParksConfig maps the park source fields.
type ParksConfig struct {
	IDField    string `yaml:"id_field" mapstructure:"id_field"`
	NameField  string `yaml:"name_field" mapstructure:"name_field"`
	AcresField string `yaml:"acres_field" mapstructure:"acres_field"`
}

// WeightsConfig groups every weight set used in index composition.
// Each group must sum to 1.0.
type WeightsConfig struct {
	Hazard        HazardWeights      `yaml:"hazard" mapstructure:"hazard"`
	Vulnerability VulWeights         `yaml:"vulnerability" mapstructure:"vulnerability"`
	Suitability   SuitabilityWeights `yaml:"suitability" mapstructure:"suitability"`
	Coastal       CoastalWeights     `yaml:"coastal" mapstructure:"coastal"`
	Storm         StormWeights       `yaml:"storm" mapstructure:"storm"`
}

// HazardWeights composes the hazard factor.
type HazardWeights struct {
	CoastalFlood float64 `yaml:"coastal_flood" mapstructure:"coastal_flood"`
	StormFlood   float64 `yaml:"storm_flood" mapstructure:"storm_flood"`
	Heat         float64 `yaml:"heat" mapstructure:"heat"`
}

// VulWeights composes the vulnerability factor.
type VulWeights struct {
	Heat  float64 `yaml:"heat" mapstructure:"heat"`
	Flood float64 `yaml:"flood" mapstructure:"flood"`
}

// SuitabilityWeights composes the final suitability score. The investment
// weight applies to the inverted normalized investment (1 - Inv_Norm).
type SuitabilityWeights struct {
	Hazard        float64 `yaml:"hazard" mapstructure:"hazard"`
	Vulnerability float64 `yaml:"vulnerability" mapstructure:"vulnerability"`
	Investment    float64 `yaml:"investment" mapstructure:"investment"`
}

// CoastalWeights weight the coastal-flood class fractions.
type CoastalWeights struct {
	Coastal500 float64 `yaml:"coastal_500" mapstructure:"coastal_500"`
	Coastal100 float64 `yaml:"coastal_100" mapstructure:"coastal_100"`
	StormTidal float64 `yaml:"storm_tidal" mapstructure:"storm_tidal"`
}

// StormWeights weight the stormwater class fractions.
type StormWeights struct {
	Shallow float64 `yaml:"shallow" mapstructure:"shallow"`
	Deep    float64 `yaml:"deep" mapstructure:"deep"`
}

// IndexSpec is one record of the index table: the raw metric field written
// to the output, the normalized alias field, and a stable key.
type IndexSpec struct {
	Key      string `yaml:"key" mapstructure:"key"`
	RawField string `yaml:"raw_field" mapstructure:"raw_field"`
	Alias    string `yaml:"alias" mapstructure:"alias"`
}

// Index keys.
const (
	IndexHeatHazard         = "heat_hazard"
	IndexCoastalFloodHazard = "coastal_flood_hazard"
	IndexStormFloodHazard   = "storm_flood_hazard"
	IndexHeatVulnerability  = "heat_vulnerability"
	IndexFloodVulnerability = "flood_vulnerability"
)

// defaultIndexes is the built-in index table, applied when the config file
// does not override it.
const defaultIndexes = `
- key: heat_hazard
  raw_field: heat_mean
  alias: HeatHaz
- key: coastal_flood_hazard
  raw_field: coastal_flood_risk
  alias: CoastalFloodHaz
- key: storm_flood_hazard
  raw_field: stormwater_flood_risk
  alias: StormFloodHaz
- key: heat_vulnerability
  raw_field: hvi_area
  alias: HeatVuln
- key: flood_vulnerability
  raw_field: flood_vuln
  alias: FloodVuln
`

// StoreConfig configures the run/score persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the read-only results server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Index returns the IndexSpec for the given key.
func (c *Config) Index(key string) (IndexSpec, error) {
	for _, spec := range c.Indexes {
		if spec.Key == key {
			return spec, nil
		}
	}
	return IndexSpec{}, eris.Errorf("config: unknown index key %q", key)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EQUITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("inputs.parks", "input/parks.geojson")
	v.SetDefault("inputs.capital_projects", "input/capital_projects.geojson")
	v.SetDefault("inputs.heat_raster", "input/thermal_composite.asc")
	v.SetDefault("inputs.coastal_raster", "input/fema_flood.asc")
	v.SetDefault("inputs.storm_raster", "input/stormwater_2080.asc")
	v.SetDefault("inputs.heat_vulnerability", "input/hvi.geojson")
	v.SetDefault("inputs.flood_vulnerability", "input/fvi.geojson")
	v.SetDefault("output.geojson", "output/parks_scored.geojson")
	v.SetDefault("analysis.crs_name", "EPSG:6539")
	v.SetDefault("analysis.proj4", "+proj=tmerc +lat_0=40.1666666666667 +lon_0=-74 +k=0.9999 +x_0=300000.0001016 +y_0=0 +ellps=GRS80 +units=us-ft +no_defs")
	v.SetDefault("analysis.resolution", 10.0)
	v.SetDefault("analysis.buffer_ft", 2000.0)
	v.SetDefault("analysis.buffer_segments", 16)
	v.SetDefault("analysis.cutoff_date", "01/01/2018")
	v.SetDefault("analysis.outlier_percentile", 5.0)
	v.SetDefault("capital.phase_field", "CurrentPha")
	v.SetDefault("capital.completed_phase", "completed")
	v.SetDefault("capital.tracker_field", "TrackerID")
	v.SetDefault("capital.date_field", "Construc_4")
	v.SetDefault("capital.date_layout", "01/02/2006 03:04:05 PM")
	v.SetDefault("capital.funding_field", "TotalFundi")
	v.SetDefault("capital.concat_fields", []string{"Title", "Summary", "CurrentPha", "Construc_4", "ProjectLia", "FundingSou"})
	v.SetDefault("capital.total_field", "EstInvTotal")
	v.SetDefault("parks.id_field", "globalid")
	v.SetDefault("parks.name_field", "signname")
	v.SetDefault("parks.acres_field", "acres")
	v.SetDefault("weights.hazard.coastal_flood", 0.25)
	v.SetDefault("weights.hazard.storm_flood", 0.50)
	v.SetDefault("weights.hazard.heat", 0.25)
	v.SetDefault("weights.vulnerability.heat", 0.50)
	v.SetDefault("weights.vulnerability.flood", 0.50)
	v.SetDefault("weights.suitability.hazard", 0.25)
	v.SetDefault("weights.suitability.vulnerability", 0.25)
	v.SetDefault("weights.suitability.investment", 0.50)
	v.SetDefault("weights.coastal.coastal_500", 0.15)
	v.SetDefault("weights.coastal.coastal_100", 0.35)
	v.SetDefault("weights.coastal.storm_tidal", 0.50)
	v.SetDefault("weights.storm.shallow", 0.30)
	v.SetDefault("weights.storm.deep", 0.70)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "equity.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Indexes) == 0 {
		if err := yaml.Unmarshal([]byte(defaultIndexes), &cfg.Indexes); err != nil {
			return nil, eris.Wrap(err, "config: parse default index table")
		}
	}

	cutoff, err := time.Parse("01/02/2006", cfg.Analysis.CutoffDate)
	if err != nil {
		return nil, eris.Wrapf(err, "config: parse cutoff date %q", cfg.Analysis.CutoffDate)
	}
	cfg.Analysis.Cutoff = cutoff

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the analysis parameters and that every weight group sums
// to 1.0.
func (c *Config) Validate() error {
	if c.Analysis.BufferFt <= 0 {
		return eris.New("config: analysis.buffer_ft must be positive")
	}
	if c.Analysis.Resolution <= 0 {
		return eris.New("config: analysis.resolution must be positive")
	}
	if c.Analysis.OutlierPercentile < 0 || c.Analysis.OutlierPercentile >= 50 {
		return eris.New("config: analysis.outlier_percentile must be in [0, 50)")
	}

	groups := []struct {
		name string
		sum  float64
	}{
		{"weights.hazard", c.Weights.Hazard.CoastalFlood + c.Weights.Hazard.StormFlood + c.Weights.Hazard.Heat},
		{"weights.vulnerability", c.Weights.Vulnerability.Heat + c.Weights.Vulnerability.Flood},
		{"weights.suitability", c.Weights.Suitability.Hazard + c.Weights.Suitability.Vulnerability + c.Weights.Suitability.Investment},
		{"weights.coastal", c.Weights.Coastal.Coastal500 + c.Weights.Coastal.Coastal100 + c.Weights.Coastal.StormTidal},
		{"weights.storm", c.Weights.Storm.Shallow + c.Weights.Storm.Deep},
	}
	for _, g := range groups {
		if math.Abs(g.sum-1.0) > 1e-9 {
			return eris.Errorf("config: %s weights sum to %g, want 1.0", g.name, g.sum)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
