package profile

import "context"

type Repository interface {
	// Create fails with ErrProfileExists when uid already has a profile.
	Create(ctx context.Context, p *UserProfile) error
	GetByID(ctx context.Context, uid string) (*UserProfile, error)
	// ListByRole returns profiles sorted by nombre.
	ListByRole(ctx context.Context, rol string) ([]*UserProfile, error)
	Delete(ctx context.Context, uid string) error
}
