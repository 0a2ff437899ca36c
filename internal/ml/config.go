package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/franckalain/livestockweight/internal/logger"
)

// BaseConfig provides common configuration functionality
type BaseConfig struct {
	ConfigPath string `json:"-"`

	log *logger.Logger
}

// LoadConfig loads configuration from a file. A missing file is not an error,
// callers fall back to environment variables. A file that exists but does not
// parse is.
func (c *BaseConfig) LoadConfig(configPath string, envPrefix string, config any) error {
	log := c.log
	if log == nil {
		log = logger.Nop()
	}

	candidates := []string{filepath.Join("config", fmt.Sprintf("%s.json", envPrefix))}
	if configPath != "" {
		candidates = append([]string{configPath}, candidates...)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		log.Info("loaded model configuration", "path", path)
		return nil
	}

	log.Info("using environment variables for model configuration", "prefix", envPrefix)
	return nil
}
