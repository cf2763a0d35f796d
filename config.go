package odm

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultURL      = "http://localhost:8529"
	defaultUsername = "root"
)

// DefaultConfig returns the configuration of a local development server.
func DefaultConfig() *Config {
	return &Config{
		URL:      defaultURL,
		Username: defaultUsername,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig and
// applies ODM_URL, ODM_USERNAME, ODM_PASSWORD and ODM_DATABASE overrides.
// An empty path loads the defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "odm: failed to read config: %v", path)
		}
		if err := yaml.Unmarshal(b, config); err != nil {
			return nil, errors.Wrapf(err, "odm: failed to parse config: %v", path)
		}
	}
	config.URL = getEnv("ODM_URL", config.URL)
	config.Username = getEnv("ODM_USERNAME", config.Username)
	config.Password = getEnv("ODM_PASSWORD", config.Password)
	config.Name = getEnv("ODM_DATABASE", config.Name)

	if config.Name == "" {
		return nil, errors.New("odm: database name is required")
	}
	return config, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
