package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort       string        `mapstructure:"HTTPPort"`
		Timeout        time.Duration `mapstructure:"HTTPTimeout"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	App           AppConfig           `mapstructure:"app"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Session       SessionConfig       `mapstructure:"session"`
	PasswordReset PasswordResetConfig `mapstructure:"passwordReset"`
	Photos        PhotosConfig        `mapstructure:"photos"`
	Mail          MailConfig          `mapstructure:"mail"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	FeatureFlags  FeatureFlagsConfig  `mapstructure:"featureFlags"`
	RateLimit     RateLimitConfig     `mapstructure:"rateLimit"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// JWTConfig holds the session token signing parameters.
type JWTConfig struct {
	SecretKey      string        `mapstructure:"secretKey"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       string        `mapstructure:"audience"`
	AccessTokenTTL time.Duration `mapstructure:"accessTokenTTL"`
}

type SessionConfig struct {
	CookieName   string `mapstructure:"cookieName"`
	CookieSecure bool   `mapstructure:"cookieSecure"`
}

type PasswordResetConfig struct {
	TokenTTL       time.Duration `mapstructure:"tokenTTL"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

type PhotosConfig struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	MaxBytes     int64  `mapstructure:"maxBytes"`
	MaxDimension int    `mapstructure:"maxDimension"`
}

type MailConfig struct {
	Driver string `mapstructure:"driver"` // log | kafka
	From   string `mapstructure:"from"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	NotificationTopic string   `mapstructure:"notificationTopic"`
}

// FlagRule decides who sees a feature flag.
type FlagRule struct {
	Enabled    bool     `mapstructure:"enabled"`
	Emails     []string `mapstructure:"emails"`
	Percentage int      `mapstructure:"percentage"`
}

type FeatureFlagsConfig struct {
	CacheTTL time.Duration       `mapstructure:"cacheTTL"`
	Flags    map[string]FlagRule `mapstructure:"flags"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64       `mapstructure:"requestsPerMinute"`
	Burst             int           `mapstructure:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanupInterval"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// JWT_SECRETKEY overrides jwt.secretKey and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secretKey must be set")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("jwt.accessTokenTTL must be positive")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return fmt.Errorf("passwordReset.tokenTTL must be positive")
	}
	switch c.Mail.Driver {
	case "log", "":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.NotificationTopic == "" {
			return fmt.Errorf("kafka.brokers and kafka.notificationTopic are required for the kafka mail driver")
		}
	default:
		return fmt.Errorf("unknown mail driver %q", c.Mail.Driver)
	}
	return nil
}
