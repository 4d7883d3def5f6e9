/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * The compliance settings (daily limit, licensed VASP set, AML threshold) are
 * loaded once at process start and handed to the settlement service as an
 * immutable configuration object; nothing reads them as process-wide state.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 * - github.com/shopspring/decimal: Exact decimal parsing for the NGN daily limit.
 */

package config

import (
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// DefaultDailyLimitNGN is the per-transaction daily limit applied when none is
// configured: 10,000,000 NGN.
const DefaultDailyLimitNGN = "10000000"

// Config holds all the configuration variables for the onramp-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort               string  `mapstructure:"SERVER_PORT"`
	StoreDriver              string  `mapstructure:"STORE_DRIVER"`
	DatabaseURL              string  `mapstructure:"DATABASE_URL"`
	RabbitMQURL              string  `mapstructure:"RABBITMQ_URL"`
	RedisURL                 string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	OnrampRateLimitPerMinute int     `mapstructure:"ONRAMP_RATE_LIMIT_PER_MINUTE"`
	DailyLimitRaw            string  `mapstructure:"DAILY_LIMIT_NGN"`
	LicensedVASPsRaw         string  `mapstructure:"LICENSED_VASPS"`
	MaxRiskScore             float64 `mapstructure:"MAX_RISK_SCORE"`
	VASPAPIBaseURL           string  `mapstructure:"VASP_API_BASE_URL"`
	VASPAPIKey               string  `mapstructure:"VASP_API_KEY"`
	VASPClientMode           string  `mapstructure:"VASP_CLIENT_MODE"`
	InternalAPIKey           string  `mapstructure:"INTERNAL_API_KEY"`

	// Parsed forms of the raw compliance settings above.
	DailyLimit    decimal.Decimal `mapstructure:"-"`
	LicensedVASPs []string        `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("STORE_DRIVER", "postgres")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "onramp:rate_limit")
	viper.SetDefault("ONRAMP_RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("DAILY_LIMIT_NGN", DefaultDailyLimitNGN)
	viper.SetDefault("LICENSED_VASPS", "vasp_001,vasp_002,vasp_003")
	viper.SetDefault("MAX_RISK_SCORE", 0.7)
	viper.SetDefault("VASP_CLIENT_MODE", "simulated")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("ONRAMP_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("DAILY_LIMIT_NGN")
	_ = viper.BindEnv("LICENSED_VASPS")
	_ = viper.BindEnv("MAX_RISK_SCORE")
	_ = viper.BindEnv("VASP_API_BASE_URL")
	_ = viper.BindEnv("VASP_API_KEY")
	_ = viper.BindEnv("VASP_CLIENT_MODE")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "ONRAMP_SERVICE_INTERNAL_API_KEY")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.DailyLimit, err = parseDailyLimit(config.DailyLimitRaw)
	if err != nil {
		return
	}
	config.LicensedVASPs = parseLicensedVASPs(config.LicensedVASPsRaw)

	if config.MaxRiskScore <= 0 || config.MaxRiskScore > 1 {
		log.Printf("level=warn component=config msg=\"max risk score out of range; using default\" value=%f", config.MaxRiskScore)
		config.MaxRiskScore = 0.7
	}
	if config.OnrampRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative rate limit configured; disabling\" value=%d", config.OnrampRateLimitPerMinute)
		config.OnrampRateLimitPerMinute = 0
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	config.VASPClientMode = strings.ToLower(strings.TrimSpace(config.VASPClientMode))

	return
}

func parseDailyLimit(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = DefaultDailyLimitNGN
	}
	limit, err := decimal.NewFromString(trimmed)
	if err != nil {
		log.Printf("level=warn component=config msg=\"invalid DAILY_LIMIT_NGN; using default\" value=%q err=%v", raw, err)
		return decimal.NewFromString(DefaultDailyLimitNGN)
	}
	if limit.Sign() <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive DAILY_LIMIT_NGN; using default\" value=%q", raw)
		return decimal.NewFromString(DefaultDailyLimitNGN)
	}
	return limit, nil
}

func parseLicensedVASPs(raw string) []string {
	var vasps []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id != "" {
			vasps = append(vasps, id)
		}
	}
	return vasps
}
