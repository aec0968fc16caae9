package profile

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

type contactoDoc struct {
	Nombre   string `bson:"nombre"`
	Telefono string `bson:"telefono"`
}

type informacionMedicaDoc struct {
	ContactoEmergencia *contactoDoc `bson:"contactoEmergencia,omitempty"`
	HistorialMedico    *string      `bson:"historialMedico,omitempty"`
	Alergias           *string      `bson:"alergias,omitempty"`
	Medicamentos       *string      `bson:"medicamentos,omitempty"`
}

type profileDoc struct {
	UID               string                `bson:"_id"`
	Nombre            string                `bson:"nombre"`
	Email             string                `bson:"email"`
	Rol               string                `bson:"rol"`
	FechaRegistro     time.Time             `bson:"fechaRegistro"`
	InformacionMedica *informacionMedicaDoc `bson:"informacionMedica,omitempty"`
}

func toProfileDoc(p *UserProfile) profileDoc {
	d := profileDoc{
		UID:           p.UID,
		Nombre:        p.Nombre,
		Email:         p.Email,
		Rol:           p.Rol,
		FechaRegistro: p.FechaRegistro,
	}
	if im, ok := p.InformacionMedica.Get(); ok {
		imd := &informacionMedicaDoc{
			HistorialMedico: im.HistorialMedico.Ptr(),
			Alergias:        im.Alergias.Ptr(),
			Medicamentos:    im.Medicamentos.Ptr(),
		}
		if c, ok := im.ContactoEmergencia.Get(); ok {
			imd.ContactoEmergencia = &contactoDoc{Nombre: c.Nombre, Telefono: c.Telefono}
		}
		d.InformacionMedica = imd
	}
	return d
}

func (d profileDoc) toProfile() *UserProfile {
	p := &UserProfile{
		UID:           d.UID,
		Nombre:        d.Nombre,
		Email:         d.Email,
		Rol:           d.Rol,
		FechaRegistro: d.FechaRegistro,
	}
	if d.InformacionMedica != nil {
		im := InformacionMedica{
			HistorialMedico: optional.FromPtr(d.InformacionMedica.HistorialMedico),
			Alergias:        optional.FromPtr(d.InformacionMedica.Alergias),
			Medicamentos:    optional.FromPtr(d.InformacionMedica.Medicamentos),
		}
		if c := d.InformacionMedica.ContactoEmergencia; c != nil {
			im.ContactoEmergencia = optional.Some(ContactoEmergencia{Nombre: c.Nombre, Telefono: c.Telefono})
		}
		p.InformacionMedica = optional.Some(im)
	}
	return p
}

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(store *docstore.Store) Repository {
	return &repoMongo{coll: store.Collection(docstore.Usuarios)}
}

func (r *repoMongo) Create(ctx context.Context, p *UserProfile) error {
	_, err := r.coll.InsertOne(ctx, toProfileDoc(p))
	if docstore.IsDuplicateKey(err) {
		return ErrProfileExists
	}
	return err
}

func (r *repoMongo) GetByID(ctx context.Context, uid string) (*UserProfile, error) {
	var d profileDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return d.toProfile(), nil
}

func (r *repoMongo) ListByRole(ctx context.Context, rol string) ([]*UserProfile, error) {
	cur, err := r.coll.Find(ctx, bson.M{"rol": rol}, options.Find().SetSort(bson.D{{Key: "nombre", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []profileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*UserProfile, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toProfile())
	}
	return items, nil
}

func (r *repoMongo) Delete(ctx context.Context, uid string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": uid})
	return err
}
