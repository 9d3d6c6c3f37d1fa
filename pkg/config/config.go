// Package config loads the mediator's runtime configuration from a YAML
// file, with environment variables overriding individual fields the way
// a deployed service's secrets and per-environment knobs usually do.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/ewbmediator/pkg/corpus"
	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
)

// CorpusFields names the title/date columns for one corpus, keyed
// case-insensitively by the corpus's file stem (trainconfig.json's
// TrDtSet basename, lowercased).
type CorpusFields struct {
	TitleField string `yaml:"title_field"`
	DateField  string `yaml:"date_field"`
}

// Config is the mediator's full runtime configuration.
type Config struct {
	// EngineURL is the base URL of the search engine this mediator talks
	// to, e.g. "http://localhost:8983" (the client appends the /solr and
	// /api paths itself).
	EngineURL string `yaml:"engine_url"`

	// RegistryCollection is the name of the collection used to track
	// known corpora and models. Defaults to "Corpora".
	RegistryCollection string `yaml:"registry_collection"`

	// BatchSize caps how many documents are sent to the engine per batch
	// update request. Defaults to 100.
	BatchSize int `yaml:"batch_size"`

	// PayloadScale is the fixed-point scale weighted payloads are encoded
	// at (the "S" in the doc-topic/topic-word payload invariant).
	// Defaults to 1000.
	PayloadScale int `yaml:"payload_scale"`

	// PayloadSeed seeds the deterministic PRNG used to break ties when
	// distributing rounding remainder across payload entries.
	PayloadSeed int64 `yaml:"payload_seed"`

	// DenylistFields names corpus columns that are dropped rather than
	// indexed, e.g. columns known to carry free text too large to index
	// usefully.
	DenylistFields []string `yaml:"denylist_fields"`

	// Fields maps a corpus file stem (lowercased, extension stripped) to
	// its title/date column names.
	Fields map[string]CorpusFields `yaml:"fields"`

	// Trainers lists trainer family names as read from the config file.
	// Nothing consults it when models are loaded: the loadable families
	// are exactly the model.TrainerFamily implementations the server
	// registers with its model.Loader.
	Trainers []string `yaml:"trainers"`
}

const (
	defaultRegistryCollection = "Corpora"
	defaultBatchSize          = 100
	defaultPayloadScale       = 1000
)

// Load reads a YAML configuration file from path, applies defaults for
// unset fields, and then overlays any matching EWBMEDIATOR_* environment
// variables.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading config %s: %v", mediatorerr.ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing config %s: %v", mediatorerr.ErrConfig, path, err)
	}

	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.EngineURL == "" {
		return Config{}, fmt.Errorf("%w: engine_url is required", mediatorerr.ErrConfig)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RegistryCollection == "" {
		cfg.RegistryCollection = defaultRegistryCollection
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PayloadScale == 0 {
		cfg.PayloadScale = defaultPayloadScale
	}
}

// envOverrides lists the environment variables Load honors, mapped to
// the setter that applies a nonempty value.
var envOverrides = map[string]func(*Config, string) error{
	"EWBMEDIATOR_ENGINE_URL": func(c *Config, v string) error { c.EngineURL = v; return nil },
	"EWBMEDIATOR_REGISTRY_COLLECTION": func(c *Config, v string) error {
		c.RegistryCollection = v
		return nil
	},
	"EWBMEDIATOR_BATCH_SIZE": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: EWBMEDIATOR_BATCH_SIZE=%q: %v", mediatorerr.ErrConfig, v, err)
		}
		c.BatchSize = n
		return nil
	},
	"EWBMEDIATOR_PAYLOAD_SCALE": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: EWBMEDIATOR_PAYLOAD_SCALE=%q: %v", mediatorerr.ErrConfig, v, err)
		}
		c.PayloadScale = n
		return nil
	},
}

func applyEnv(cfg *Config) error {
	for name, set := range envOverrides {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			return err
		}
	}
	return nil
}

// FieldsFor looks up the title/date column configuration for a corpus
// file stem (case-insensitive), returning an empty CorpusFields if none
// is configured.
func (c Config) FieldsFor(stem string) corpus.FieldConfig {
	fc := c.Fields[strings.ToLower(stem)]
	return corpus.FieldConfig{TitleField: fc.TitleField, DateField: fc.DateField}
}

// RequireFields looks up the title/date column configuration for a
// corpus file stem, failing with ErrConfig if no section is configured
// for it: an unconfigured corpus has no way to know which source column
// holds its title and date, and that is a fatal error rather than a
// silently empty mapping.
func (c Config) RequireFields(stem string) (corpus.FieldConfig, error) {
	fc, ok := c.Fields[strings.ToLower(stem)]
	if !ok {
		return corpus.FieldConfig{}, fmt.Errorf("%w: no title_field/date_field section configured for corpus %q", mediatorerr.ErrConfig, stem)
	}
	return corpus.FieldConfig{TitleField: fc.TitleField, DateField: fc.DateField}, nil
}

// IsDenied reports whether field should be dropped rather than indexed.
func (c Config) IsDenied(field string) bool {
	for _, f := range c.DenylistFields {
		if f == field {
			return true
		}
	}
	return false
}
