package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fisiotrack/fisiotrack/internal/platform/db"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const profileCols = `uid, nombre, email, rol, fecha_registro, informacion_medica`

func scanProfile(row pgx.Row) (*UserProfile, error) {
	var p UserProfile
	var info []byte
	if err := row.Scan(&p.UID, &p.Nombre, &p.Email, &p.Rol, &p.FechaRegistro, &info); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if info != nil {
		var im InformacionMedica
		if err := json.Unmarshal(info, &im); err != nil {
			return nil, fmt.Errorf("decode informacion_medica of %s: %w", p.UID, err)
		}
		p.InformacionMedica = optional.Some(im)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *UserProfile) error {
	var info []byte
	if im, ok := p.InformacionMedica.Get(); ok {
		var err error
		if info, err = json.Marshal(im); err != nil {
			return fmt.Errorf("encode informacion_medica: %w", err)
		}
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO usuarios (uid, nombre, email, rol, fecha_registro, informacion_medica)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uid) DO NOTHING`,
		p.UID, p.Nombre, p.Email, p.Rol, p.FechaRegistro, info)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileExists
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, uid string) (*UserProfile, error) {
	return scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+profileCols+` FROM usuarios WHERE uid = $1`, uid))
}

func (r *repoPG) ListByRole(ctx context.Context, rol string) ([]*UserProfile, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+profileCols+` FROM usuarios WHERE rol = $1 ORDER BY nombre`, rol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, uid string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM usuarios WHERE uid = $1`, uid)
	return err
}
