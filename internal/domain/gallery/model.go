// Package gallery manages galerias: therapist-curated sets of exercise
// videos assigned to patients.
package gallery

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
)

var ErrGalleryNotFound = fmt.Errorf("galeria %w", apperr.ErrNotFound)

const (
	minNombre      = 3
	minDescripcion = 10
)

type Video struct {
	Titulo     string `json:"titulo"`
	YoutubeURL string `json:"youtubeUrl"`
}

type Galeria struct {
	ID                 string    `json:"id"`
	Nombre             string    `json:"nombre"`
	Descripcion        string    `json:"descripcion"`
	Videos             []Video   `json:"videos"`
	CreadaPor          string    `json:"creadaPor"`
	PacientesAsignados []string  `json:"pacientesAsignados"`
	FechaCreacion      time.Time `json:"fechaCreacion"`
}

// VisibleTo reports whether uid created the galeria or is assigned to it.
func (g *Galeria) VisibleTo(uid string) bool {
	return uid != "" && (g.CreadaPor == uid || lo.Contains(g.PacientesAsignados, uid))
}

type CreateRequest struct {
	Nombre             string   `json:"nombre"`
	Descripcion        string   `json:"descripcion"`
	Videos             []Video  `json:"videos"`
	PacientesAsignados []string `json:"pacientesAsignados"`
}

type AssignmentsRequest struct {
	PacientesAsignados []string `json:"pacientesAsignados"`
}

// VideoID extracts the video id from a youtube.com watch URL or a youtu.be
// short link.
func VideoID(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	var id string
	switch strings.ToLower(u.Hostname()) {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		id = u.Query().Get("v")
	}
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// EmbedURL returns the player URL for a valid video link.
func EmbedURL(raw string) (string, bool) {
	id, ok := VideoID(raw)
	if !ok {
		return "", false
	}
	return "https://www.youtube.com/embed/" + id, true
}

// normalizeAssignments trims, drops blanks and de-duplicates uids, keeping
// first-seen order.
func normalizeAssignments(uids []string) ([]string, error) {
	out := lo.Uniq(lo.FilterMap(uids, func(uid string, _ int) (string, bool) {
		uid = strings.TrimSpace(uid)
		return uid, uid != ""
	}))
	if len(out) == 0 {
		return nil, apperr.Invalid("pacientesAsignados", "must assign at least one patient")
	}
	return out, nil
}

func (r *CreateRequest) normalize() error {
	r.Nombre = strings.TrimSpace(r.Nombre)
	r.Descripcion = strings.TrimSpace(r.Descripcion)
	if len([]rune(r.Nombre)) < minNombre {
		return apperr.Invalid("nombre", "must have at least %d characters", minNombre)
	}
	if len([]rune(r.Descripcion)) < minDescripcion {
		return apperr.Invalid("descripcion", "must have at least %d characters", minDescripcion)
	}
	if len(r.Videos) == 0 {
		return apperr.Invalid("videos", "must contain at least one video")
	}
	for i := range r.Videos {
		v := &r.Videos[i]
		v.Titulo = strings.TrimSpace(v.Titulo)
		v.YoutubeURL = strings.TrimSpace(v.YoutubeURL)
		if v.Titulo == "" {
			return apperr.Invalid(fmt.Sprintf("videos[%d].titulo", i), "is required")
		}
		if _, ok := VideoID(v.YoutubeURL); !ok {
			return apperr.Invalid(fmt.Sprintf("videos[%d].youtubeUrl", i), "must be a valid YouTube URL")
		}
	}
	uids, err := normalizeAssignments(r.PacientesAsignados)
	if err != nil {
		return err
	}
	r.PacientesAsignados = uids
	return nil
}
