// Package profile owns the usuarios collection: one profile per identity,
// created once, plus a live per-profile watch.
package profile

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

var (
	ErrProfileNotFound = fmt.Errorf("profile %w", apperr.ErrNotFound)
	ErrProfileExists   = fmt.Errorf("%w: profile already exists", apperr.ErrConflict)
)

type ContactoEmergencia struct {
	Nombre   string `json:"nombre"`
	Telefono string `json:"telefono"`
}

// InformacionMedica is the patient medical block. Every field may be absent;
// the block itself may be present and empty.
type InformacionMedica struct {
	ContactoEmergencia optional.Value[ContactoEmergencia] `json:"contactoEmergencia,omitzero"`
	HistorialMedico    optional.Value[string]             `json:"historialMedico,omitzero"`
	Alergias           optional.Value[string]             `json:"alergias,omitzero"`
	Medicamentos       optional.Value[string]             `json:"medicamentos,omitzero"`
}

type UserProfile struct {
	UID               string                            `json:"uid"`
	Nombre            string                            `json:"nombre"`
	Email             string                            `json:"email"`
	Rol               string                            `json:"rol"`
	FechaRegistro     time.Time                         `json:"fechaRegistro"`
	InformacionMedica optional.Value[InformacionMedica] `json:"informacionMedica,omitzero"`
}

func (p *UserProfile) IsTherapist() bool { return p.Rol == auth.RoleTherapist }
func (p *UserProfile) IsPatient() bool   { return p.Rol == auth.RolePatient }

// Rules selects how strictly a new profile is checked.
type Rules struct {
	// RequireEmergencyContact is set on self-registration of patients.
	RequireEmergencyContact bool
	// PhoneRegion is the default region for numbers without a country code.
	PhoneRegion string
}

// Normalize validates a new profile in place: trims text, canonicalizes the
// emergency phone to E.164, gives patients a (possibly empty) medical block
// and strips it from therapists.
func Normalize(p *UserProfile, rules Rules) error {
	p.Nombre = strings.TrimSpace(p.Nombre)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	if len([]rune(p.Nombre)) < 2 {
		return apperr.Invalid("nombre", "must have at least 2 characters")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return apperr.Invalid("email", "a valid email is required")
	}
	if !auth.ValidRole(p.Rol) {
		return apperr.Invalid("rol", "must be %q or %q", auth.RoleTherapist, auth.RolePatient)
	}

	if p.Rol == auth.RoleTherapist {
		p.InformacionMedica = optional.None[InformacionMedica]()
		return nil
	}

	info := p.InformacionMedica.OrElse(InformacionMedica{})
	info.HistorialMedico = trimmed(info.HistorialMedico)
	info.Alergias = trimmed(info.Alergias)
	info.Medicamentos = trimmed(info.Medicamentos)

	contact, hasContact := info.ContactoEmergencia.Get()
	contact.Nombre = strings.TrimSpace(contact.Nombre)
	contact.Telefono = strings.TrimSpace(contact.Telefono)
	if rules.RequireEmergencyContact {
		if contact.Nombre == "" {
			return apperr.Invalid("contactoEmergenciaNombre", "emergency contact is required for patients")
		}
		if contact.Telefono == "" {
			return apperr.Invalid("contactoEmergenciaTelefono", "emergency contact phone is required for patients")
		}
	}
	if contact.Telefono != "" {
		e164, err := NormalizePhone(contact.Telefono, rules.PhoneRegion)
		if err != nil {
			return err
		}
		contact.Telefono = e164
	}
	if hasContact || contact.Nombre != "" || contact.Telefono != "" {
		info.ContactoEmergencia = optional.Some(contact)
	}

	p.InformacionMedica = optional.Some(info)
	return nil
}

// NormalizePhone parses a phone number and returns it in E.164 form.
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperr.Invalid("contactoEmergenciaTelefono", "invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func trimmed(v optional.Value[string]) optional.Value[string] {
	s, ok := v.Get()
	if !ok {
		return v
	}
	return optional.NonEmpty(strings.TrimSpace(s))
}
