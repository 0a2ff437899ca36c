package ml

import (
	"context"
	"fmt"

	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/models"
)

// Model estimates live weight from a capture
type Model interface {
	// Load initializes the model with its configuration
	Load(ctx context.Context) error
	// Estimate takes a capture and returns an unsaved or backend-saved observation
	Estimate(ctx context.Context, req models.EstimateRequest) (*models.Observation, error)
}

// ModelFactory creates a new model instance based on configuration
type ModelFactory interface {
	CreateModel() (Model, error)
}

// NewModel creates a model of the given type. "backend" forwards captures to
// the remote estimation endpoint; "google" calls Vertex AI directly.
func NewModel(modelType, configPath string, backend WeightEstimator, log *logger.Logger) (Model, error) {
	if log == nil {
		log = logger.Nop()
	}

	var factory ModelFactory
	switch modelType {
	case "", "backend":
		if backend == nil {
			return nil, fmt.Errorf("backend model requires a backend client")
		}
		factory = NewBackendModelFactory(backend)
	case "google":
		config := GoogleConfig{
			BaseConfig: BaseConfig{ConfigPath: configPath, log: log},
		}
		if err := config.Load(); err != nil {
			return nil, fmt.Errorf("failed to load Google config: %w", err)
		}
		factory = NewGoogleModelFactory(config, log)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", modelType)
	}
	return factory.CreateModel()
}
