package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings shared by every function in this module.
// Values come from the environment; table names default to the deployed names.
type Config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	Places struct {
		BaseURL        string        `mapstructure:"base_url"`
		APIKey         string        `mapstructure:"api_key"`
		APIKeySecretID string        `mapstructure:"api_key_secret_id"`
		HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	} `mapstructure:"places"`

	Tables struct {
		Users          string `mapstructure:"users"`
		Donors         string `mapstructure:"donors"`
		Providers      string `mapstructure:"providers"`
		BloodRequests  string `mapstructure:"blood_requests"`
		RequesterIndex string `mapstructure:"requester_index"`
		Deletions      string `mapstructure:"deletions"`
	} `mapstructure:"tables"`

	Cognito struct {
		UserPoolID string `mapstructure:"user_pool_id"`
	} `mapstructure:"cognito"`

	S3 struct {
		ReceiptBucket string `mapstructure:"receipt_bucket"`
	} `mapstructure:"s3"`

	LocalServer struct {
		Port      string `mapstructure:"port"`
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"local_server"`
}

// envBindings maps config keys to the environment variables set on the functions
var envBindings = map[string]string{
	"env":                      "APP_ENV",
	"log_level":                "LOG_LEVEL",
	"places.base_url":          "PLACES_API_BASE_URL",
	"places.api_key":           "PLACES_API_KEY",
	"places.api_key_secret_id": "PLACES_API_KEY_SECRET_ID",
	"places.http_timeout":      "PLACES_HTTP_TIMEOUT",
	"tables.users":             "USERS_TABLE",
	"tables.donors":            "DONORS_TABLE",
	"tables.providers":         "HEALTHCARE_PROVIDERS_TABLE",
	"tables.blood_requests":    "BLOOD_REQUESTS_TABLE",
	"tables.requester_index":   "BLOOD_REQUESTS_REQUESTER_INDEX",
	"tables.deletions":         "ACCOUNT_DELETIONS_TABLE",
	"cognito.user_pool_id":     "COGNITO_USER_POOL_ID",
	"s3.receipt_bucket":        "DELETION_RECEIPTS_BUCKET",
	"local_server.port":        "LOCAL_SERVER_PORT",
	"local_server.jwt_secret":  "LOCAL_SERVER_JWT_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "prod")
	v.SetDefault("log_level", "")
	v.SetDefault("places.base_url", "https://places.googleapis.com")
	v.SetDefault("places.api_key", "")
	v.SetDefault("places.api_key_secret_id", "")
	v.SetDefault("places.http_timeout", 10*time.Second)
	v.SetDefault("tables.users", "users")
	v.SetDefault("tables.donors", "donors")
	v.SetDefault("tables.providers", "healthcare_providers")
	v.SetDefault("tables.blood_requests", "blood_requests")
	v.SetDefault("tables.requester_index", "requesterId-index")
	v.SetDefault("tables.deletions", "account_deletions")
	v.SetDefault("cognito.user_pool_id", "")
	v.SetDefault("s3.receipt_bucket", "")
	v.SetDefault("local_server.port", "8080")
	v.SetDefault("local_server.jwt_secret", "")
}

// Load reads the configuration from the process environment
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ValidateDeletion checks the settings the delete user function cannot run without
func (c *Config) ValidateDeletion() error {
	var missing []string
	if c.Tables.Users == "" {
		missing = append(missing, "USERS_TABLE")
	}
	if c.Tables.Donors == "" {
		missing = append(missing, "DONORS_TABLE")
	}
	if c.Tables.Providers == "" {
		missing = append(missing, "HEALTHCARE_PROVIDERS_TABLE")
	}
	if c.Tables.BloodRequests == "" {
		missing = append(missing, "BLOOD_REQUESTS_TABLE")
	}
	if c.Tables.Deletions == "" {
		missing = append(missing, "ACCOUNT_DELETIONS_TABLE")
	}
	if c.Cognito.UserPoolID == "" {
		missing = append(missing, "COGNITO_USER_POOL_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}
