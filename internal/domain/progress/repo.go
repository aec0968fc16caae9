package progress

import "context"

// Repository lists are newest first.
type Repository interface {
	Create(ctx context.Context, a *Avance) error
	GetByID(ctx context.Context, id string) (*Avance, error)
	ListByPatient(ctx context.Context, pacienteUID string) ([]*Avance, error)
	ListByRecord(ctx context.Context, expedienteID string) ([]*Avance, error)
	ListByTherapist(ctx context.Context, terapeutaUID string) ([]*Avance, error)
}
