// Package config loads client and server settings from an optional YAML file
// with NDSTREAM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/goccy/go-yaml"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "NDSTREAM_"

// Config holds everything needed to run a stream or the mock server
type Config struct {
	BaseURL     string            `yaml:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration     `yaml:"timeout" validate:"gte=0"`
	BufferSize  int               `yaml:"buffer_size" validate:"min=1,max=16777216"`
	Delimiter   string            `yaml:"delimiter" validate:"required"`
	Charset     string            `yaml:"charset"`
	ContentType string            `yaml:"content_type"`
	Headers     map[string]string `yaml:"headers" validate:"dive,keys,required,endkeys"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
}

// LogConfig configures the root logger
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error off"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// ServerConfig configures the mock NDJSON server
type ServerConfig struct {
	Addr      string        `yaml:"addr" validate:"required,hostname_port"`
	Records   int           `yaml:"records" validate:"min=0"`
	ChunkSize int           `yaml:"chunk_size" validate:"min=1"`
	Delay     time.Duration `yaml:"delay" validate:"gte=0"`

	// CORSOrigins are the browser origins allowed to read streams
	CORSOrigins []string `yaml:"cors_origins" validate:"dive,required"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Timeout:    0,
		BufferSize: 4096,
		Delimiter:  "\n",
		Headers:    map[string]string{},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:      "localhost:8080",
			Records:   10,
			ChunkSize: 16,
			Delay:     100 * time.Millisecond,
		},
	}
}

// Load reads path (if non-empty), applies environment overrides and validates
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file %q: %w", path, err)
		}
		if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
			return nil, fmt.Errorf("error loading config file %q: %w", path, err)
		}
	}

	if err := applyEnv(cfg, env{lookup: lookup}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env is a prefixed view over an environment lookup
type env struct {
	lookup func(string) (string, bool)
}

func (e env) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func applyEnv(cfg *Config, e env) error {
	if v, ok := e.get("BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := e.get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sTIMEOUT %q: %w", EnvPrefix, v, err)
		}
		cfg.Timeout = d
	}
	if v, ok := e.get("BUFFER_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sBUFFER_SIZE %q: %w", EnvPrefix, v, err)
		}
		cfg.BufferSize = n
	}
	if v, ok := e.get("DELIMITER"); ok {
		unquoted, err := strconv.Unquote(`"` + v + `"`)
		if err != nil {
			return fmt.Errorf("invalid %sDELIMITER %q: %w", EnvPrefix, v, err)
		}
		cfg.Delimiter = unquoted
	}
	if v, ok := e.get("CHARSET"); ok {
		cfg.Charset = v
	}
	if v, ok := e.get("CONTENT_TYPE"); ok {
		cfg.ContentType = v
	}
	if v, ok := e.get("HEADERS"); ok {
		for _, pair := range strings.Split(v, ",") {
			name, value, found := strings.Cut(pair, ":")
			if !found {
				return fmt.Errorf("invalid %sHEADERS entry %q, expected Name:value", EnvPrefix, pair)
			}
			if cfg.Headers == nil {
				cfg.Headers = map[string]string{}
			}
			cfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	if v, ok := e.get("LOG_LEVEL"); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := e.get("LOG_FORMAT"); ok {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v, ok := e.get("SERVER_ADDR"); ok {
		cfg.Server.Addr = v
	}
	if v, ok := e.get("CORS_ORIGINS"); ok {
		cfg.Server.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, o)
			}
		}
	}
	return nil
}

var validate, translator = newValidator()

func newValidator() (*validator.Validate, ut.Translator) {
	enLoc := en.New()
	trans, _ := ut.New(enLoc, enLoc).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	// report yaml names in messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		panic(fmt.Sprintf("config: registering validation translations: %v", err))
	}
	return v, trans
}

// Validate checks the configuration against its constraints
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, fe.Translate(translator)))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
