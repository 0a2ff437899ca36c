package ml

import (
	"context"

	"github.com/franckalain/livestockweight/internal/models"
)

// WeightEstimator is the remote estimation endpoint, see transport.Client
type WeightEstimator interface {
	EstimateWeight(ctx context.Context, in models.EstimateRequest) (*models.Observation, error)
}

// BackendModel forwards captures to the backend, which runs inference and
// may persist the observation as part of the same call.
type BackendModel struct {
	backend WeightEstimator
}

// BackendModelFactory implements ModelFactory for the backend model
type BackendModelFactory struct {
	backend WeightEstimator
}

func NewBackendModelFactory(backend WeightEstimator) *BackendModelFactory {
	return &BackendModelFactory{backend: backend}
}

func (f *BackendModelFactory) CreateModel() (Model, error) {
	return &BackendModel{backend: f.backend}, nil
}

// Load is a no-op, the backend owns the model
func (m *BackendModel) Load(ctx context.Context) error {
	return nil
}

func (m *BackendModel) Estimate(ctx context.Context, req models.EstimateRequest) (*models.Observation, error) {
	return m.backend.EstimateWeight(ctx, req)
}
