package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Database  Database  `yaml:"database"`
	Log       Log       `yaml:"log"`
	ML        ML        `yaml:"ml"`
	Recommend Recommend `yaml:"recommend"`
}

type HTTP struct {
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" validate:"gt=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type Database struct {
	// Path is empty when persistence is disabled.
	Path string `yaml:"path"`
}

type Log struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
}

type ML struct {
	ModelType           string  `yaml:"model_type" validate:"oneof=dense decision_tree"`
	Epochs              int     `yaml:"epochs" validate:"min=1"`
	HiddenUnits         int     `yaml:"hidden_units" validate:"min=1"`
	LearningRate        float64 `yaml:"learning_rate" validate:"gt=0"`
	Seed                int64   `yaml:"seed"`
	MaxDepth            int     `yaml:"max_depth" validate:"min=1"`
	ReuseTrainingBounds bool    `yaml:"reuse_training_bounds"`
	ModelCacheSize      int     `yaml:"model_cache_size" validate:"min=1"`

	// Vocabularies for the two categorical fields, in one-hot order.
	Colors    []string `yaml:"colors" validate:"min=1,unique,dive,required"`
	Locations []string `yaml:"locations" validate:"min=1,unique,dive,required"`
}

type Recommend struct {
	StepDelay time.Duration `yaml:"step_delay" validate:"min=0"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTP{
			Port:           8080,
			Timeout:        30 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Database: Database{Path: "mlplayground.db"},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		ML: ML{
			ModelType:      "dense",
			Epochs:         100,
			HiddenUnits:    80,
			LearningRate:   0.001,
			Seed:           42,
			MaxDepth:       3,
			ModelCacheSize: 32,
			Colors:         []string{"azul", "vermelho", "verde"},
			Locations:      []string{"São Paulo", "Rio", "Curitiba"},
		},
		Recommend: Recommend{StepDelay: 350 * time.Millisecond},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	messages := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		if fe.Param() != "" {
			messages[i] = fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		} else {
			messages[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(messages, "; "))
}
