package record

import "context"

// Repository persists expedientes. Lists by therapist are newest first; lists
// by patient are oldest first so the first entry is the patient's primary record.
type Repository interface {
	Create(ctx context.Context, e *Expediente) error
	GetByID(ctx context.Context, id string) (*Expediente, error)
	ListByTherapist(ctx context.Context, terapeutaUID string) ([]*Expediente, error)
	ListByPatient(ctx context.Context, pacienteUID string) ([]*Expediente, error)
	UpdateClinical(ctx context.Context, e *Expediente) error
}
