package record

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/db"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const recordCols = `id, paciente_uid, terapeuta_uid, descripcion, diagnostico, objetivos, plan_tratamiento, fecha_creacion`

func scanRecord(row pgx.Row) (*Expediente, error) {
	var e Expediente
	var diag, obj, plan *string
	err := row.Scan(&e.ID, &e.PacienteUID, &e.TerapeutaUID, &e.Descripcion, &diag, &obj, &plan, &e.FechaCreacion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	e.Diagnostico = optional.FromPtr(diag)
	e.Objetivos = optional.FromPtr(obj)
	e.PlanTratamiento = optional.FromPtr(plan)
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Expediente) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO expedientes (`+recordCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.PacienteUID, e.TerapeutaUID, e.Descripcion,
		e.Diagnostico.Ptr(), e.Objetivos.Ptr(), e.PlanTratamiento.Ptr(), e.FechaCreacion)
	if db.IsForeignKeyViolation(err) {
		return apperr.Invalid("pacienteUid", "unknown patient")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Expediente, error) {
	return scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+recordCols+` FROM expedientes WHERE id = $1`, id))
}

func (r *repoPG) list(ctx context.Context, sql string, arg string) ([]*Expediente, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Expediente
	for rows.Next() {
		e, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByTherapist(ctx context.Context, terapeutaUID string) ([]*Expediente, error) {
	return r.list(ctx, `SELECT `+recordCols+` FROM expedientes WHERE terapeuta_uid = $1 ORDER BY fecha_creacion DESC`, terapeutaUID)
}

func (r *repoPG) ListByPatient(ctx context.Context, pacienteUID string) ([]*Expediente, error) {
	return r.list(ctx, `SELECT `+recordCols+` FROM expedientes WHERE paciente_uid = $1 ORDER BY fecha_creacion ASC`, pacienteUID)
}

func (r *repoPG) UpdateClinical(ctx context.Context, e *Expediente) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE expedientes SET diagnostico = $2, objetivos = $3, plan_tratamiento = $4
		WHERE id = $1`,
		e.ID, e.Diagnostico.Ptr(), e.Objetivos.Ptr(), e.PlanTratamiento.Ptr())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
