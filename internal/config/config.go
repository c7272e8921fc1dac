/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the rental-control service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort         string `mapstructure:"SERVER_PORT"`
	DatabasePath       string `mapstructure:"DATABASE_PATH"`
	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	ScooterRegistryURL string `mapstructure:"SCOOTER_REGISTRY_URL"`
	UserRegistryURL    string `mapstructure:"USER_REGISTRY_URL"`
	LockControllerURL  string `mapstructure:"LOCK_CONTROLLER_URL"`
	PaymentServiceURL  string `mapstructure:"PAYMENT_SERVICE_URL"`
	// ClientTimeoutSeconds bounds every outbound call to a collaborator.
	ClientTimeoutSeconds int   `mapstructure:"CLIENT_TIMEOUT_SECONDS"`
	FixedFeeCents        int64 `mapstructure:"FIXED_FEE_CENTS"`
	PerMinuteFeeCents    int64 `mapstructure:"PER_MINUTE_FEE_CENTS"`
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

	// Set default values. The defaults mirror the ports the platform's services
	// traditionally run on behind the gateway.
	viper.SetDefault("SERVER_PORT", "8082")
	viper.SetDefault("DATABASE_PATH", "./dados-aluguel.db")
	viper.SetDefault("SCOOTER_REGISTRY_URL", "http://localhost:8081")
	viper.SetDefault("USER_REGISTRY_URL", "http://localhost:8080")
	viper.SetDefault("LOCK_CONTROLLER_URL", "http://localhost:8083")
	viper.SetDefault("PAYMENT_SERVICE_URL", "http://localhost:8084")
	viper.SetDefault("CLIENT_TIMEOUT_SECONDS", 5)
	viper.SetDefault("FIXED_FEE_CENTS", 500)
	viper.SetDefault("PER_MINUTE_FEE_CENTS", 15)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_PATH")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SCOOTER_REGISTRY_URL")
	_ = viper.BindEnv("USER_REGISTRY_URL")
	_ = viper.BindEnv("LOCK_CONTROLLER_URL")
	_ = viper.BindEnv("PAYMENT_SERVICE_URL")
	_ = viper.BindEnv("CLIENT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("FIXED_FEE_CENTS")
	_ = viper.BindEnv("PER_MINUTE_FEE_CENTS")

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

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)

	if config.ClientTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive client timeout configured; using default\" timeout_seconds=%d", config.ClientTimeoutSeconds)
		config.ClientTimeoutSeconds = 5
	}
	if config.FixedFeeCents < 0 {
		log.Printf("level=warn component=config msg=\"negative fixed fee configured; coercing to zero\" fee_cents=%d", config.FixedFeeCents)
		config.FixedFeeCents = 0
	}
	if config.PerMinuteFeeCents < 0 {
		log.Printf("level=warn component=config msg=\"negative per-minute fee configured; coercing to zero\" fee_cents=%d", config.PerMinuteFeeCents)
		config.PerMinuteFeeCents = 0
	}

	return
}
