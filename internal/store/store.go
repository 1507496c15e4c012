package store

import (
	"context"

	"github.com/craftlabs/forma/internal/models"
)

// Store defines the persistence interface for formulation history.
// Workflow state itself is never persisted; only completed formulations
// are recorded.
type Store interface {
	CreateFormulation(ctx context.Context, f *models.Formulation) error
	GetFormulation(ctx context.Context, id string) (*models.Formulation, error)
	ListFormulations(ctx context.Context, category string, limit int) ([]*models.Formulation, error)
	DeleteFormulation(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
