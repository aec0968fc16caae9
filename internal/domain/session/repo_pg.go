package session

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

const sessionCols = `id, expediente_id, terapeuta_uid, paciente_uid, fecha, modalidad, ubicacion, nota, estado, creada_en,
	notas_terapeuta, dolor_inicial, dolor_final, progreso_percibido, estado_animo_observado,
	observaciones_objetivas, tecnicas_aplicadas, plan_proxima_sesion`

func scanSession(row pgx.Row) (*Sesion, error) {
	var s Sesion
	var ubicacion, nota, notas, progreso, animo, obs, tecnicas, plan *string
	var dolorIni, dolorFin *int
	err := row.Scan(&s.ID, &s.ExpedienteID, &s.TerapeutaUID, &s.PacienteUID, &s.Fecha, &s.Modalidad,
		&ubicacion, &nota, &s.Estado, &s.CreadaEn,
		&notas, &dolorIni, &dolorFin, &progreso, &animo, &obs, &tecnicas, &plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.Ubicacion = optional.FromPtr(ubicacion)
	s.Nota = optional.FromPtr(nota)
	s.NotasTerapeuta = optional.FromPtr(notas)
	s.DolorInicial = optional.FromPtr(dolorIni)
	s.DolorFinal = optional.FromPtr(dolorFin)
	s.ProgresoPercibido = optional.FromPtr(progreso)
	s.EstadoAnimoObservado = optional.FromPtr(animo)
	s.ObservacionesObjetivas = optional.FromPtr(obs)
	s.TecnicasAplicadas = optional.FromPtr(tecnicas)
	s.PlanProximaSesion = optional.FromPtr(plan)
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Sesion) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO sesiones (id, expediente_id, terapeuta_uid, paciente_uid, fecha, modalidad, ubicacion, nota, estado, creada_en)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.ExpedienteID, s.TerapeutaUID, s.PacienteUID, s.Fecha, s.Modalidad,
		s.Ubicacion.Ptr(), s.Nota.Ptr(), s.Estado, s.CreadaEn)
	if db.IsForeignKeyViolation(err) {
		return apperr.Invalid("expedienteId", "unknown expediente")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Sesion, error) {
	return scanSession(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+sessionCols+` FROM sesiones WHERE id = $1`, id))
}

func (r *repoPG) list(ctx context.Context, where string, args ...any) ([]*Sesion, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+sessionCols+` FROM sesiones WHERE `+where+` ORDER BY fecha ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Sesion
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByRecord(ctx context.Context, expedienteID string) ([]*Sesion, error) {
	return r.list(ctx, `expediente_id = $1`, expedienteID)
}

func (r *repoPG) ListByTherapist(ctx context.Context, terapeutaUID, estado string) ([]*Sesion, error) {
	if estado == "" {
		return r.list(ctx, `terapeuta_uid = $1`, terapeutaUID)
	}
	return r.list(ctx, `terapeuta_uid = $1 AND estado = $2`, terapeutaUID, estado)
}

func (r *repoPG) ListByPatient(ctx context.Context, pacienteUID string) ([]*Sesion, error) {
	return r.list(ctx, `paciente_uid = $1`, pacienteUID)
}

func (r *repoPG) Transition(ctx context.Context, s *Sesion) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `
		UPDATE sesiones SET estado = $2, notas_terapeuta = $3, dolor_inicial = $4, dolor_final = $5,
			progreso_percibido = $6, estado_animo_observado = $7, observaciones_objetivas = $8,
			tecnicas_aplicadas = $9, plan_proxima_sesion = $10
		WHERE id = $1 AND estado = 'agendada'`,
		s.ID, s.Estado, s.NotasTerapeuta.Ptr(), s.DolorInicial.Ptr(), s.DolorFinal.Ptr(),
		s.ProgresoPercibido.Ptr(), s.EstadoAnimoObservado.Ptr(), s.ObservacionesObjetivas.Ptr(),
		s.TecnicasAplicadas.Ptr(), s.PlanProximaSesion.Ptr())
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sesiones WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrSessionNotFound
	}
	return ErrTerminalState
}
