package progress

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

const avanceCols = `id, paciente_uid, terapeuta_uid, expediente_id, fecha_registro, registrado_por, tipo_registro,
	dolor_inicial, dolor_final, ubicacion_dolor, ejercicios_realizados, dias_ejercicio, ejercicios_dificiles,
	movilidad_percibida, fatiga, limitaciones_funcionales, estado_animo, motivacion, comentario_paciente`

func scanAvance(row pgx.Row) (*Avance, error) {
	var a Avance
	var dificiles, limitaciones, comentario *string
	err := row.Scan(&a.ID, &a.PacienteUID, &a.TerapeutaUID, &a.ExpedienteID, &a.FechaRegistro, &a.RegistradoPor, &a.TipoRegistro,
		&a.DolorInicial, &a.DolorFinal, &a.UbicacionDolor, &a.EjerciciosRealizados, &a.DiasEjercicio, &dificiles,
		&a.MovilidadPercibida, &a.Fatiga, &limitaciones, &a.EstadoAnimo, &a.Motivacion, &comentario)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}
	a.EjerciciosDificiles = optional.FromPtr(dificiles)
	a.LimitacionesFuncionales = optional.FromPtr(limitaciones)
	a.ComentarioPaciente = optional.FromPtr(comentario)
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Avance) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO avances (`+avanceCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.PacienteUID, a.TerapeutaUID, a.ExpedienteID, a.FechaRegistro, a.RegistradoPor, a.TipoRegistro,
		a.DolorInicial, a.DolorFinal, a.UbicacionDolor, a.EjerciciosRealizados, a.DiasEjercicio, a.EjerciciosDificiles.Ptr(),
		a.MovilidadPercibida, a.Fatiga, a.LimitacionesFuncionales.Ptr(), a.EstadoAnimo, a.Motivacion, a.ComentarioPaciente.Ptr())
	if db.IsForeignKeyViolation(err) {
		return apperr.Invalid("expedienteId", "unknown expediente")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Avance, error) {
	return scanAvance(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+avanceCols+` FROM avances WHERE id = $1`, id))
}

func (r *repoPG) list(ctx context.Context, column, value string) ([]*Avance, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+avanceCols+` FROM avances WHERE `+column+` = $1 ORDER BY fecha_registro DESC`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Avance
	for rows.Next() {
		a, err := scanAvance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, pacienteUID string) ([]*Avance, error) {
	return r.list(ctx, "paciente_uid", pacienteUID)
}

func (r *repoPG) ListByRecord(ctx context.Context, expedienteID string) ([]*Avance, error) {
	return r.list(ctx, "expediente_id", expedienteID)
}

func (r *repoPG) ListByTherapist(ctx context.Context, terapeutaUID string) ([]*Avance, error) {
	return r.list(ctx, "terapeuta_uid", terapeutaUID)
}
