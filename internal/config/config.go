package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Provider names. They double as config keys under "providers" and as the
// provider tag recorded with each result.
const (
	ProviderEnrichSo = "enrichso"
	ProviderIPData   = "ipdata"
	ProviderIPAPI    = "ipapi"
	ProviderIPInfo   = "ipinfo"
	ProviderClearbit = "clearbit"
	ProviderApollo   = "apollo"
	ProviderHunter   = "hunter"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the record store backing the persistence gateway.
type StoreConfig struct {
	Driver           string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL      string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns         int32  `yaml:"max_conns" mapstructure:"max_conns"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
}

// QueueConfig configures the job transport.
type QueueConfig struct {
	Driver         string `yaml:"driver" mapstructure:"driver"`
	AMQPURL        string `yaml:"amqp_url" mapstructure:"amqp_url"`
	Name           string `yaml:"name" mapstructure:"name"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	PollIntervalMs int    `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	RetryBaseSecs  int    `yaml:"retry_base_secs" mapstructure:"retry_base_secs"`
}

// WorkerConfig configures the enrichment worker pool.
type WorkerConfig struct {
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	JobTimeoutSecs int `yaml:"job_timeout_secs" mapstructure:"job_timeout_secs"`
}

// ProviderConfig holds one provider's credential and call limits.
// An empty Key means the provider is not configured.
type ProviderConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerMinute int    `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	Disabled      bool   `yaml:"disabled" mapstructure:"disabled"`
}

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ProvidersConfig holds per-provider settings and the priority order.
type ProvidersConfig struct {
	OrderFile          string        `yaml:"order_file" mapstructure:"order_file"`
	DefaultTimeoutSecs int           `yaml:"default_timeout_secs" mapstructure:"default_timeout_secs"`
	Breaker            BreakerConfig `yaml:"breaker" mapstructure:"breaker"`

	EnrichSo ProviderConfig `yaml:"enrichso" mapstructure:"enrichso"`
	IPData   ProviderConfig `yaml:"ipdata" mapstructure:"ipdata"`
	IPAPI    ProviderConfig `yaml:"ipapi" mapstructure:"ipapi"`
	IPInfo   ProviderConfig `yaml:"ipinfo" mapstructure:"ipinfo"`
	Clearbit ProviderConfig `yaml:"clearbit" mapstructure:"clearbit"`
	Apollo   ProviderConfig `yaml:"apollo" mapstructure:"apollo"`
	Hunter   ProviderConfig `yaml:"hunter" mapstructure:"hunter"`
}

// Get returns the settings for the named provider.
func (p ProvidersConfig) Get(name string) ProviderConfig {
	switch name {
	case ProviderEnrichSo:
		return p.EnrichSo
	case ProviderIPData:
		return p.IPData
	case ProviderIPAPI:
		return p.IPAPI
	case ProviderIPInfo:
		return p.IPInfo
	case ProviderClearbit:
		return p.Clearbit
	case ProviderApollo:
		return p.Apollo
	case ProviderHunter:
		return p.Hunter
	default:
		return ProviderConfig{}
	}
}

// Timeout returns the per-call timeout for the named provider.
func (p ProvidersConfig) Timeout(name string) time.Duration {
	secs := p.Get(name).TimeoutSecs
	if secs <= 0 {
		secs = p.DefaultTimeoutSecs
	}
	if secs <= 0 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

// ProviderOrder lists provider names in priority order for each shape.
type ProviderOrder struct {
	Identity []string `yaml:"identity"`
	Deepen   string   `yaml:"deepen"`
	Contact  []string `yaml:"contact"`
}

// DefaultProviderOrder is the built-in priority order.
func DefaultProviderOrder() ProviderOrder {
	return ProviderOrder{
		Identity: []string{ProviderEnrichSo, ProviderIPData, ProviderIPAPI, ProviderIPInfo},
		Deepen:   ProviderClearbit,
		Contact:  []string{ProviderClearbit, ProviderApollo, ProviderHunter},
	}
}

// LoadProviderOrder reads a provider order file. An empty path returns the
// default order. Sections missing from the file keep their defaults.
func LoadProviderOrder(path string) (ProviderOrder, error) {
	order := DefaultProviderOrder()
	if path == "" {
		return order, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return order, eris.Wrapf(err, "config: read provider order %s", path)
	}

	var wrapper struct {
		Providers ProviderOrder `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return order, eris.Wrap(err, "config: parse provider order")
	}

	if len(wrapper.Providers.Identity) > 0 {
		order.Identity = wrapper.Providers.Identity
	}
	if wrapper.Providers.Deepen != "" {
		order.Deepen = wrapper.Providers.Deepen
	}
	if len(wrapper.Providers.Contact) > 0 {
		order.Contact = wrapper.Providers.Contact
	}
	return order, nil
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background alert checker. Alerts are only
// sent when WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DLQDepthThreshold    int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var providerNames = []string{
	ProviderEnrichSo, ProviderIPData, ProviderIPAPI, ProviderIPInfo,
	ProviderClearbit, ProviderApollo, ProviderHunter,
}

// Load reads configuration from .env, config.yaml, and ENRICH_* environment
// variables, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.write_timeout_secs", 10)
	v.SetDefault("queue.driver", "postgres")
	v.SetDefault("queue.amqp_url", "")
	v.SetDefault("queue.name", "enrichment")
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.poll_interval_ms", 1000)
	v.SetDefault("queue.retry_base_secs", 30)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.job_timeout_secs", 120)
	v.SetDefault("providers.order_file", "")
	v.SetDefault("providers.default_timeout_secs", 10)
	v.SetDefault("providers.breaker.failure_threshold", 5)
	v.SetDefault("providers.breaker.reset_timeout_secs", 60)
	for _, name := range providerNames {
		v.SetDefault("providers."+name+".key", "")
		v.SetDefault("providers."+name+".base_url", "")
		v.SetDefault("providers."+name+".disabled", false)
	}
	v.SetDefault("providers.ipapi.rate_per_minute", 45)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.dlq_depth_threshold", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts.
// Modes: "work", "enrich", "enqueue", "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch mode {
	case "work":
		require(c.Worker.Concurrency > 0, "worker.concurrency must be positive")
		require(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
		c.requireStore(require)
		c.requireQueue(require)
	case "enqueue":
		c.requireQueue(require)
		if c.Queue.Driver == "postgres" {
			c.requireStore(require)
		}
	case "enrich", "migrate":
		c.requireStore(require)
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) requireStore(require func(bool, string)) {
	switch c.Store.Driver {
	case "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	case "sqlite":
	default:
		require(false, "store.driver must be postgres or sqlite")
	}
}

func (c *Config) requireQueue(require func(bool, string)) {
	switch c.Queue.Driver {
	case "postgres":
		require(c.Store.Driver == "postgres", "queue.driver postgres requires store.driver postgres")
	case "amqp":
		require(c.Queue.AMQPURL != "", "queue.amqp_url is required")
	default:
		require(false, "queue.driver must be postgres or amqp")
	}
	require(c.Queue.Name != "", "queue.name is required")
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
