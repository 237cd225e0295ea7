// Package config decodes the server configuration and dataset catalogue.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"go.ngs.io/oceangrid/internal/adapter/interp"
	"go.ngs.io/oceangrid/internal/adapter/store/calculated"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "OCEANGRID"

// Dataset kinds.
const (
	KindStructured = "structured"
	KindMesh       = "mesh"
)

// ErrInvalid indicates an unusable configuration.
var ErrInvalid = errors.New("config: invalid configuration")

// Dataset is one catalogue entry.
type Dataset struct {
	ID  string
	URL string
	// Type is KindStructured, KindMesh, or empty to detect from the file.
	Type string
	// TimeTolerance is the relative tolerance used to match timestamps.
	TimeTolerance float64
	Method        interp.Method
	Neighbours    int
	Variables     map[string]calculated.Definition
}

// Config is the server configuration.
type Config struct {
	Port        string
	LogLevel    string
	CORSOrigins []string
	// RateLimit is the sustained request rate per second. Zero disables
	// limiting.
	RateLimit float64
	RateBurst int
	// OpenDatasets bounds the number of dataset handles kept open.
	OpenDatasets int
	Workers      int
	Datasets     []Dataset
}

// SetDefaults registers default values on cfg.
func SetDefaults(cfg *viper.Viper) {
	cfg.SetDefault("port", "8080")
	cfg.SetDefault("log_level", "info")
	cfg.SetDefault("cors_allowed_origins", "")
	cfg.SetDefault("rate_limit", 0.0)
	cfg.SetDefault("rate_burst", 20)
	cfg.SetDefault("open_datasets", 8)
	cfg.SetDefault("workers", 0)
}

// Load decodes cfg.
func Load(cfg *viper.Viper) (*Config, error) {
	c := &Config{
		Port:         cfg.GetString("port"),
		LogLevel:     cfg.GetString("log_level"),
		CORSOrigins:  splitList(cfg.GetString("cors_allowed_origins")),
		RateLimit:    cfg.GetFloat64("rate_limit"),
		RateBurst:    cfg.GetInt("rate_burst"),
		OpenDatasets: cfg.GetInt("open_datasets"),
		Workers:      cfg.GetInt("workers"),
	}
	if c.RateLimit < 0 {
		return nil, fmt.Errorf("%w: rate_limit=%g but should be >= 0", ErrInvalid, c.RateLimit)
	}

	raw, err := toMap(cfg.Get("datasets"))
	if err != nil {
		return nil, fmt.Errorf("%w: datasets: %v", ErrInvalid, err)
	}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ds, err := parseDataset(id, raw[id])
		if err != nil {
			return nil, err
		}
		c.Datasets = append(c.Datasets, ds)
	}
	return c, nil
}

// Dataset returns the catalogue entry with the given id.
func (c *Config) Dataset(id string) (Dataset, bool) {
	for _, ds := range c.Datasets {
		if ds.ID == id {
			return ds, true
		}
	}
	return Dataset{}, false
}

func parseDataset(id string, v any) (Dataset, error) {
	m, err := toMap(v)
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: datasets.%s: %v", ErrInvalid, id, err)
	}
	ds := Dataset{
		ID:            id,
		URL:           os.ExpandEnv(cast.ToString(m["url"])),
		Type:          strings.ToLower(cast.ToString(m["type"])),
		TimeTolerance: cast.ToFloat64(m["time_tolerance"]),
		Neighbours:    cast.ToInt(m["neighbours"]),
	}
	if ds.URL == "" {
		return Dataset{}, fmt.Errorf("%w: datasets.%s.url is not specified", ErrInvalid, id)
	}
	switch ds.Type {
	case "", KindStructured, KindMesh:
	default:
		return Dataset{}, fmt.Errorf("%w: datasets.%s.type=%q", ErrInvalid, id, ds.Type)
	}
	if ds.TimeTolerance < 0 {
		return Dataset{}, fmt.Errorf("%w: datasets.%s.time_tolerance=%g but should be >= 0", ErrInvalid, id, ds.TimeTolerance)
	}
	if ds.Method, err = interp.ParseMethod(cast.ToString(m["method"])); err != nil {
		return Dataset{}, fmt.Errorf("%w: datasets.%s.method: %v", ErrInvalid, id, err)
	}

	vars, err := toMap(m["variables"])
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: datasets.%s.variables: %v", ErrInvalid, id, err)
	}
	if len(vars) > 0 {
		ds.Variables = make(map[string]calculated.Definition, len(vars))
	}
	for key, def := range vars {
		d, err := parseDefinition(def)
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: datasets.%s.variables.%s: %v", ErrInvalid, id, key, err)
		}
		ds.Variables[key] = d
	}
	return ds, nil
}

func parseDefinition(v any) (calculated.Definition, error) {
	m, err := toMap(v)
	if err != nil {
		return calculated.Definition{}, err
	}
	d := calculated.Definition{
		Equation: cast.ToString(m["equation"]),
		LongName: cast.ToString(m["name"]),
		Units:    cast.ToString(m["unit"]),
		Dims:     cast.ToStringSlice(m["dims"]),
	}
	if d.Equation == "" {
		return calculated.Definition{}, errors.New("equation is not specified")
	}
	if m["valid_min"] != nil {
		f, err := cast.ToFloat64E(m["valid_min"])
		if err != nil {
			return calculated.Definition{}, fmt.Errorf("valid_min: %v", err)
		}
		d.ValidMin = &f
	}
	if m["valid_max"] != nil {
		f, err := cast.ToFloat64E(m["valid_max"])
		if err != nil {
			return calculated.Definition{}, fmt.Errorf("valid_max: %v", err)
		}
		d.ValidMax = &f
	}
	return d, nil
}

// toMap decodes a nested mapping. A missing section is empty.
func toMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	return cast.ToStringMapE(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
