package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/rarewear/storefront-api/internal/platform/firestore"
)

// HealthRepository probes Firestore connectivity for readiness checks.
type HealthRepository struct {
	provider *pfirestore.Provider
}

// NewHealthRepository constructs a Firestore backed health repository.
func NewHealthRepository(provider *pfirestore.Provider) (*HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("health repository requires firestore provider")
	}
	return &HealthRepository{provider: provider}, nil
}

// Ping issues a cheap read against the products collection to prove the
// client can reach the backend.
func (r *HealthRepository) Ping(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return errors.New("health repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Collection(productsCollection).Limit(1).Documents(ctx).GetAll(); err != nil {
		return pfirestore.WrapError("health.ping", err)
	}
	return nil
}
