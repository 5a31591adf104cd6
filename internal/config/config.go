package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"routing-simulator/internal/types"
)

const envPrefix = "SIMULATOR"

var validatorInstance = validator.New()

// Endpoints are the external collaborators the simulator talks to.
type Endpoints struct {
	Decision    string `mapstructure:"decision" validate:"required,url"`
	Feedback    string `mapstructure:"feedback" validate:"required,url"`
	RoutingRule string `mapstructure:"routing_rule" validate:"required,url"`
	Connectors  string `mapstructure:"connectors" validate:"required,url"`
	Payments    string `mapstructure:"payments" validate:"required,url"`
	Summary     string `mapstructure:"summary" validate:"required,url"`
	ProxyTarget string `mapstructure:"proxy_target" validate:"omitempty,url"`
}

// Engine holds the scheduling knobs of the batch loop.
type Engine struct {
	TickInterval   time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	MaxConcurrency int           `mapstructure:"max_concurrency" validate:"gte=0"`
	SummaryTimeout time.Duration `mapstructure:"summary_timeout" validate:"gt=0"`
}

// Feedback tunes the background feedback delivery.
type Feedback struct {
	Workers   int           `mapstructure:"workers" validate:"gt=0"`
	QueueSize int           `mapstructure:"queue_size" validate:"gt=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Redis is the persistence backend.
type Redis struct {
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db" validate:"gte=0"`
	Prefix  string `mapstructure:"prefix"`
	Enabled bool   `mapstructure:"enabled"`
}

// Settings is the full process configuration.
type Settings struct {
	Listen          string                 `mapstructure:"listen" validate:"required"`
	Debug           bool                   `mapstructure:"debug"`
	HTTPTimeout     time.Duration          `mapstructure:"http_timeout" validate:"gt=0"`
	ConnectorTTL    time.Duration          `mapstructure:"connector_ttl" validate:"gt=0"`
	RoutingDebounce time.Duration          `mapstructure:"routing_debounce" validate:"gt=0"`
	Endpoints       Endpoints              `mapstructure:"endpoints"`
	Engine          Engine                 `mapstructure:"engine"`
	Feedback        Feedback               `mapstructure:"feedback"`
	Redis           Redis                  `mapstructure:"redis"`
	Session         types.SessionContext   `mapstructure:"session" validate:"-"`
	Simulation      types.SimulationConfig `mapstructure:"simulation"`

	// StaticConnectors replaces the connector listing service when set.
	StaticConnectors []types.ConnectorState `mapstructure:"static_connectors" validate:"omitempty,dive"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8000")
	v.SetDefault("debug", false)
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("connector_ttl", 5*time.Minute)
	v.SetDefault("routing_debounce", 900*time.Millisecond)

	v.SetDefault("endpoints.decision", "http://localhost:8080/decide-gateway")
	v.SetDefault("endpoints.feedback", "http://localhost:8080/update-gateway-score")
	v.SetDefault("endpoints.routing_rule", "http://localhost:8080/rule/create")
	v.SetDefault("endpoints.connectors", "http://localhost:8081/account/connectors")
	v.SetDefault("endpoints.payments", "http://localhost:8081/payments")
	v.SetDefault("endpoints.summary", "http://localhost:8082/summary")
	v.SetDefault("endpoints.proxy_target", "http://localhost:8081")

	v.SetDefault("engine.tick_interval", time.Second)
	v.SetDefault("engine.max_concurrency", 10)
	v.SetDefault("engine.summary_timeout", 60*time.Second)

	v.SetDefault("feedback.workers", 4)
	v.SetDefault("feedback.queue_size", 100)
	v.SetDefault("feedback.timeout", 5*time.Second)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "simulator")

	v.SetDefault("session.api_key", "")
	v.SetDefault("session.profile_id", "")
	v.SetDefault("session.merchant_id", "")

	v.SetDefault("simulation.target_total", 100)
	v.SetDefault("simulation.batch_size", 10)
	v.SetDefault("simulation.failure_percent", map[string]float64{})
	v.SetDefault("simulation.exploration_percent", 20.0)
	v.SetDefault("simulation.bucket_size", 200)
	v.SetDefault("simulation.ranking_algorithm", "SR_BASED_ROUTING")
	v.SetDefault("simulation.amount", 6540)
	v.SetDefault("simulation.currency", "USD")
	v.SetDefault("simulation.fallback", string(types.FallbackNone))
	v.SetDefault("simulation.fallback_connector_id", "")

	v.SetDefault("simulation.success_card.number", "4242424242424242")
	v.SetDefault("simulation.success_card.expiry_month", "10")
	v.SetDefault("simulation.success_card.expiry_year", "2030")
	v.SetDefault("simulation.success_card.holder_name", "Joseph Doe")
	v.SetDefault("simulation.success_card.cvc", "123")

	v.SetDefault("simulation.failure_card.number", "4000000000000002")
	v.SetDefault("simulation.failure_card.expiry_month", "10")
	v.SetDefault("simulation.failure_card.expiry_year", "2030")
	v.SetDefault("simulation.failure_card.holder_name", "Joseph Doe")
	v.SetDefault("simulation.failure_card.cvc", "123")
}

// Flags returns the command line flags that override configuration keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("simulator", pflag.ContinueOnError)

	fs.String("config", "", "path to a configuration file")
	fs.String("listen", ":8000", "address the HTTP API listens on")
	fs.Bool("debug", false, "enable debug logging")
	fs.Duration("engine.tick_interval", time.Second, "interval between simulation batches")
	fs.Int("engine.max_concurrency", 10, "maximum concurrent payments within a batch")
	fs.Int("simulation.target_total", 100, "payments to simulate per run")
	fs.Int("simulation.batch_size", 10, "payments dispatched per batch")
	fs.String("redis.addr", "localhost:6379", "redis address")

	return fs
}

// Load reads defaults, an optional file, SIMULATOR_* environment variables and flags.
func Load(fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}

		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}

	err := v.Unmarshal(settings, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if err := validatorInstance.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: %s", verrs[0].Namespace())
		}

		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}
