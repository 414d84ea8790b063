package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EndpointConfig describes one exchange REST series endpoint.
type EndpointConfig struct {
	Path        string            `yaml:"path"`
	TrID        string            `yaml:"tr_id"`
	Params      map[string]string `yaml:"params"`
	PeriodParam string            `yaml:"period_param"`
	ResultPath  string            `yaml:"result_path"`
	DateField   string            `yaml:"date_field"`
	ValueField  string            `yaml:"value_field"`
}

// PageConfig describes one scrapeable quote page.
type PageConfig struct {
	URL     string `yaml:"url"`
	Pattern string `yaml:"pattern"`
}

type Config struct {
	Environment string `yaml:"environment" default:"production" validate:"required"`

	Store struct {
		Root      string `yaml:"root" default:"./data" validate:"required"`
		RawFormat string `yaml:"raw_format" default:"parquet" validate:"oneof=parquet csv"`
	} `yaml:"store"`

	Catalog struct {
		Path string `yaml:"path" default:"./config/catalog.yaml" validate:"required"`
	} `yaml:"catalog"`

	Resolver struct {
		Workers        int           `yaml:"workers" default:"4" validate:"gt=0,lte=64"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout" default:"10s"`
	} `yaml:"resolver"`

	Guard struct {
		RPS   float64 `yaml:"rps" default:"5"`
		Burst int     `yaml:"burst" default:"2"`
	} `yaml:"guard"`

	Exchange struct {
		Mode          string                    `yaml:"mode" default:"auto" validate:"oneof=live simulation auto"`
		BaseURL       string                    `yaml:"base_url" validate:"required"`
		TokenPath     string                    `yaml:"token_path" default:"/oauth2/tokenP"`
		AppKey        string                    `yaml:"app_key"`
		AppSecret     string                    `yaml:"app_secret"`
		RefreshMargin time.Duration             `yaml:"refresh_margin" default:"2m"`
		Series        map[string]EndpointConfig `yaml:"series"`
	} `yaml:"exchange"`

	Vendor struct {
		BaseURL string `yaml:"base_url" validate:"required"`
	} `yaml:"vendor"`

	Scrape struct {
		Pages map[string]PageConfig `yaml:"pages"`
	} `yaml:"scrape"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"marketpull.final"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"marketpull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`

	Logger struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"logger"`
}

var validate = validator.New()

// Load reads a YAML configuration file, fills defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables. Credentials are expected to arrive this way in production.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("EXCHANGE_APP_KEY"); v != "" {
		c.Exchange.AppKey = v
	}
	if v := os.Getenv("EXCHANGE_APP_SECRET"); v != "" {
		c.Exchange.AppSecret = v
	}
	if v := os.Getenv("EXCHANGE_MODE"); v != "" {
		c.Exchange.Mode = v
	}
	if v := os.Getenv("STORE_ROOT"); v != "" {
		c.Store.Root = v
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}

	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}
