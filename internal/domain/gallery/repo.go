package gallery

import "context"

// Repository lists are newest first.
type Repository interface {
	Create(ctx context.Context, g *Galeria) error
	GetByID(ctx context.Context, id string) (*Galeria, error)
	ListByCreator(ctx context.Context, terapeutaUID string) ([]*Galeria, error)
	// ListAssignedTo returns galerias whose pacientesAsignados contains uid.
	ListAssignedTo(ctx context.Context, pacienteUID string) ([]*Galeria, error)
	// UpdateAssignments replaces pacientesAsignados. Videos never change.
	UpdateAssignments(ctx context.Context, id string, pacientes []string) error
}
