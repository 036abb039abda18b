// Package config holds the settings of the operator client.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "FEES"

type Config struct {
	Server         string        // backend base URL
	TokenFile      string        // where the session token is kept between runs
	Journal        string        // reconciliation journal database
	CheckoutSecret string        // signs simulated checkout callbacks; test merchants only
	Timeout        time.Duration // per request
}

// Load reads the settings from, in order of precedence, flags bound on v, FEES_* environment
// variables, an optional collect.yaml in the config directory, and defaults.
func Load(v *viper.Viper) (*Config, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}

	v.SetDefault("server", "http://localhost:8000")
	v.SetDefault("token-file", filepath.Join(dir, "token"))
	v.SetDefault("journal", filepath.Join(dir, "journal.db"))
	v.SetDefault("checkout-secret", "")
	v.SetDefault("timeout", 30*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("collect")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	conf := &Config{
		Server:         strings.TrimRight(v.GetString("server"), "/"),
		TokenFile:      v.GetString("token-file"),
		Journal:        v.GetString("journal"),
		CheckoutSecret: v.GetString("checkout-secret"),
		Timeout:        v.GetDuration("timeout"),
	}
	if conf.Server == "" {
		return nil, errors.New("server URL is required")
	}
	return conf, nil
}

func configDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locating config directory")
	}
	return filepath.Join(base, "studentfee"), nil
}
