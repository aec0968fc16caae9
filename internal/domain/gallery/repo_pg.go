package gallery

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fisiotrack/fisiotrack/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const galleryCols = `id, nombre, descripcion, videos, creada_por, pacientes_asignados, fecha_creacion`

func scanGallery(row pgx.Row) (*Galeria, error) {
	var g Galeria
	err := row.Scan(&g.ID, &g.Nombre, &g.Descripcion, &g.Videos, &g.CreadaPor, &g.PacientesAsignados, &g.FechaCreacion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGalleryNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *repoPG) Create(ctx context.Context, g *Galeria) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO galerias (`+galleryCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.Nombre, g.Descripcion, g.Videos, g.CreadaPor, g.PacientesAsignados, g.FechaCreacion)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Galeria, error) {
	return scanGallery(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+galleryCols+` FROM galerias WHERE id = $1`, id))
}

func (r *repoPG) list(ctx context.Context, where, arg string) ([]*Galeria, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+galleryCols+` FROM galerias WHERE `+where+` ORDER BY fecha_creacion DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Galeria
	for rows.Next() {
		g, err := scanGallery(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByCreator(ctx context.Context, terapeutaUID string) ([]*Galeria, error) {
	return r.list(ctx, `creada_por = $1`, terapeutaUID)
}

func (r *repoPG) ListAssignedTo(ctx context.Context, pacienteUID string) ([]*Galeria, error) {
	return r.list(ctx, `$1 = ANY (pacientes_asignados)`, pacienteUID)
}

func (r *repoPG) UpdateAssignments(ctx context.Context, id string, pacientes []string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE galerias SET pacientes_asignados = $2 WHERE id = $1`, id, pacientes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGalleryNotFound
	}
	return nil
}
