package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aluedeke/go-signhere/pkg/keychain"
	"github.com/aluedeke/go-signhere/pkg/openssl"
)

const envPrefix = "SIGNHERE"

// Config holds the settings shared by all commands. Flags override it.
type Config struct {
	KeyIdentifier        string    `mapstructure:"key_identifier"`
	IssuerID             string    `mapstructure:"issuer_id"`
	ItunesConnectKeyPath string    `mapstructure:"itunes_connect_key_path"`
	Enterprise           bool      `mapstructure:"enterprise"`
	OpenSSLPath          string    `mapstructure:"openssl_path"`
	SecurityPath         string    `mapstructure:"security_path"`
	Log                  LogConfig `mapstructure:"log"`
}

// loadConfig reads .env, the environment and the optional config file.
// An explicit path must exist; the default signhere.yaml may be absent.
func loadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("key_identifier", "")
	v.SetDefault("issuer_id", "")
	v.SetDefault("itunes_connect_key_path", "")
	v.SetDefault("enterprise", false)
	v.SetDefault("openssl_path", openssl.DefaultPath)
	v.SetDefault("security_path", keychain.DefaultPath)
	v.SetDefault("log.level", LOG_LEVEL_INFO)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("signhere")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/signhere")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
