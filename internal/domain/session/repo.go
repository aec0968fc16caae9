package session

import "context"

// Repository lists are sorted by fecha ascending.
type Repository interface {
	Create(ctx context.Context, s *Sesion) error
	GetByID(ctx context.Context, id string) (*Sesion, error)
	ListByRecord(ctx context.Context, expedienteID string) ([]*Sesion, error)
	// ListByTherapist filters on estado unless it is empty.
	ListByTherapist(ctx context.Context, terapeutaUID, estado string) ([]*Sesion, error)
	ListByPatient(ctx context.Context, pacienteUID string) ([]*Sesion, error)
	// Transition stores s's estado and completion fields only if the stored
	// session is still agendada. It returns ErrTerminalState otherwise.
	Transition(ctx context.Context, s *Sesion) error
}
