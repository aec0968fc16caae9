package session

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

type sessionDoc struct {
	ID           string    `bson:"_id"`
	ExpedienteID string    `bson:"expedienteId"`
	TerapeutaUID string    `bson:"terapeutaUid"`
	PacienteUID  string    `bson:"pacienteUid"`
	Fecha        time.Time `bson:"fecha"`
	Modalidad    string    `bson:"modalidad"`
	Ubicacion    *string   `bson:"ubicacion,omitempty"`
	Nota         *string   `bson:"nota,omitempty"`
	Estado       string    `bson:"estado"`
	CreadaEn     time.Time `bson:"creadaEn"`

	NotasTerapeuta         *string `bson:"notasTerapeuta,omitempty"`
	DolorInicial           *int    `bson:"dolorInicial,omitempty"`
	DolorFinal             *int    `bson:"dolorFinal,omitempty"`
	ProgresoPercibido      *string `bson:"progresoPercibido,omitempty"`
	EstadoAnimoObservado   *string `bson:"estadoAnimoObservado,omitempty"`
	ObservacionesObjetivas *string `bson:"observacionesObjetivas,omitempty"`
	TecnicasAplicadas      *string `bson:"tecnicasAplicadas,omitempty"`
	PlanProximaSesion      *string `bson:"planProximaSesion,omitempty"`
}

func toSessionDoc(s *Sesion) sessionDoc {
	return sessionDoc{
		ID:                     s.ID,
		ExpedienteID:           s.ExpedienteID,
		TerapeutaUID:           s.TerapeutaUID,
		PacienteUID:            s.PacienteUID,
		Fecha:                  s.Fecha,
		Modalidad:              s.Modalidad,
		Ubicacion:              s.Ubicacion.Ptr(),
		Nota:                   s.Nota.Ptr(),
		Estado:                 s.Estado,
		CreadaEn:               s.CreadaEn,
		NotasTerapeuta:         s.NotasTerapeuta.Ptr(),
		DolorInicial:           s.DolorInicial.Ptr(),
		DolorFinal:             s.DolorFinal.Ptr(),
		ProgresoPercibido:      s.ProgresoPercibido.Ptr(),
		EstadoAnimoObservado:   s.EstadoAnimoObservado.Ptr(),
		ObservacionesObjetivas: s.ObservacionesObjetivas.Ptr(),
		TecnicasAplicadas:      s.TecnicasAplicadas.Ptr(),
		PlanProximaSesion:      s.PlanProximaSesion.Ptr(),
	}
}

func (d sessionDoc) toSession() *Sesion {
	return &Sesion{
		ID:                     d.ID,
		ExpedienteID:           d.ExpedienteID,
		TerapeutaUID:           d.TerapeutaUID,
		PacienteUID:            d.PacienteUID,
		Fecha:                  d.Fecha,
		Modalidad:              d.Modalidad,
		Ubicacion:              optional.FromPtr(d.Ubicacion),
		Nota:                   optional.FromPtr(d.Nota),
		Estado:                 d.Estado,
		CreadaEn:               d.CreadaEn,
		NotasTerapeuta:         optional.FromPtr(d.NotasTerapeuta),
		DolorInicial:           optional.FromPtr(d.DolorInicial),
		DolorFinal:             optional.FromPtr(d.DolorFinal),
		ProgresoPercibido:      optional.FromPtr(d.ProgresoPercibido),
		EstadoAnimoObservado:   optional.FromPtr(d.EstadoAnimoObservado),
		ObservacionesObjetivas: optional.FromPtr(d.ObservacionesObjetivas),
		TecnicasAplicadas:      optional.FromPtr(d.TecnicasAplicadas),
		PlanProximaSesion:      optional.FromPtr(d.PlanProximaSesion),
	}
}

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(store *docstore.Store) Repository {
	return &repoMongo{coll: store.Collection(docstore.Sesiones)}
}

func (r *repoMongo) Create(ctx context.Context, s *Sesion) error {
	_, err := r.coll.InsertOne(ctx, toSessionDoc(s))
	return err
}

func (r *repoMongo) GetByID(ctx context.Context, id string) (*Sesion, error) {
	var d sessionDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return d.toSession(), nil
}

func (r *repoMongo) find(ctx context.Context, filter bson.M) ([]*Sesion, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "fecha", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []sessionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*Sesion, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toSession())
	}
	return items, nil
}

func (r *repoMongo) ListByRecord(ctx context.Context, expedienteID string) ([]*Sesion, error) {
	return r.find(ctx, bson.M{"expedienteId": expedienteID})
}

func (r *repoMongo) ListByTherapist(ctx context.Context, terapeutaUID, estado string) ([]*Sesion, error) {
	filter := bson.M{"terapeutaUid": terapeutaUID}
	if estado != "" {
		filter["estado"] = estado
	}
	return r.find(ctx, filter)
}

func (r *repoMongo) ListByPatient(ctx context.Context, pacienteUID string) ([]*Sesion, error) {
	return r.find(ctx, bson.M{"pacienteUid": pacienteUID})
}

func (r *repoMongo) Transition(ctx context.Context, s *Sesion) error {
	d := toSessionDoc(s)
	set := bson.M{"estado": d.Estado}
	for field, v := range map[string]any{
		"notasTerapeuta":         d.NotasTerapeuta,
		"dolorInicial":           d.DolorInicial,
		"dolorFinal":             d.DolorFinal,
		"progresoPercibido":      d.ProgresoPercibido,
		"estadoAnimoObservado":   d.EstadoAnimoObservado,
		"observacionesObjetivas": d.ObservacionesObjetivas,
		"tecnicasAplicadas":      d.TecnicasAplicadas,
		"planProximaSesion":      d.PlanProximaSesion,
	} {
		switch p := v.(type) {
		case *string:
			if p != nil {
				set[field] = *p
			}
		case *int:
			if p != nil {
				set[field] = *p
			}
		}
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": s.ID, "estado": EstadoAgendada}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": s.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return ErrTerminalState
}
