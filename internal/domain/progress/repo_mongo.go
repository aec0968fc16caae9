package progress

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

type avanceDoc struct {
	ID                      string    `bson:"_id"`
	PacienteUID             string    `bson:"pacienteUid"`
	TerapeutaUID            string    `bson:"terapeutaUid"`
	ExpedienteID            string    `bson:"expedienteId"`
	FechaRegistro           time.Time `bson:"fechaRegistro"`
	RegistradoPor           string    `bson:"registradoPor"`
	TipoRegistro            string    `bson:"tipoRegistro"`
	DolorInicial            int       `bson:"dolorInicial"`
	DolorFinal              int       `bson:"dolorFinal"`
	UbicacionDolor          string    `bson:"ubicacionDolor"`
	EjerciciosRealizados    string    `bson:"ejerciciosRealizados"`
	DiasEjercicio           int       `bson:"diasEjercicio"`
	EjerciciosDificiles     *string   `bson:"ejerciciosDificiles,omitempty"`
	MovilidadPercibida      string    `bson:"movilidadPercibida"`
	Fatiga                  int       `bson:"fatiga"`
	LimitacionesFuncionales *string   `bson:"limitacionesFuncionales,omitempty"`
	EstadoAnimo             string    `bson:"estadoAnimo"`
	Motivacion              int       `bson:"motivacion"`
	ComentarioPaciente      *string   `bson:"comentarioPaciente,omitempty"`
}

func toAvanceDoc(a *Avance) avanceDoc {
	return avanceDoc{
		ID:                      a.ID,
		PacienteUID:             a.PacienteUID,
		TerapeutaUID:            a.TerapeutaUID,
		ExpedienteID:            a.ExpedienteID,
		FechaRegistro:           a.FechaRegistro,
		RegistradoPor:           a.RegistradoPor,
		TipoRegistro:            a.TipoRegistro,
		DolorInicial:            a.DolorInicial,
		DolorFinal:              a.DolorFinal,
		UbicacionDolor:          a.UbicacionDolor,
		EjerciciosRealizados:    a.EjerciciosRealizados,
		DiasEjercicio:           a.DiasEjercicio,
		EjerciciosDificiles:     a.EjerciciosDificiles.Ptr(),
		MovilidadPercibida:      a.MovilidadPercibida,
		Fatiga:                  a.Fatiga,
		LimitacionesFuncionales: a.LimitacionesFuncionales.Ptr(),
		EstadoAnimo:             a.EstadoAnimo,
		Motivacion:              a.Motivacion,
		ComentarioPaciente:      a.ComentarioPaciente.Ptr(),
	}
}

func (d avanceDoc) toAvance() *Avance {
	return &Avance{
		ID:            d.ID,
		PacienteUID:   d.PacienteUID,
		TerapeutaUID:  d.TerapeutaUID,
		ExpedienteID:  d.ExpedienteID,
		FechaRegistro: d.FechaRegistro,
		RegistradoPor: d.RegistradoPor,
		TipoRegistro:  d.TipoRegistro,
		Payload: Payload{
			DolorInicial:            d.DolorInicial,
			DolorFinal:              d.DolorFinal,
			UbicacionDolor:          d.UbicacionDolor,
			EjerciciosRealizados:    d.EjerciciosRealizados,
			DiasEjercicio:           d.DiasEjercicio,
			EjerciciosDificiles:     optional.FromPtr(d.EjerciciosDificiles),
			MovilidadPercibida:      d.MovilidadPercibida,
			Fatiga:                  d.Fatiga,
			LimitacionesFuncionales: optional.FromPtr(d.LimitacionesFuncionales),
			EstadoAnimo:             d.EstadoAnimo,
			Motivacion:              d.Motivacion,
			ComentarioPaciente:      optional.FromPtr(d.ComentarioPaciente),
		},
	}
}

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(store *docstore.Store) Repository {
	return &repoMongo{coll: store.Collection(docstore.Avances)}
}

func (r *repoMongo) Create(ctx context.Context, a *Avance) error {
	_, err := r.coll.InsertOne(ctx, toAvanceDoc(a))
	return err
}

func (r *repoMongo) GetByID(ctx context.Context, id string) (*Avance, error) {
	var d avanceDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}
	return d.toAvance(), nil
}

func (r *repoMongo) find(ctx context.Context, filter bson.M) ([]*Avance, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "fechaRegistro", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []avanceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*Avance, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toAvance())
	}
	return items, nil
}

func (r *repoMongo) ListByPatient(ctx context.Context, pacienteUID string) ([]*Avance, error) {
	return r.find(ctx, bson.M{"pacienteUid": pacienteUID})
}

func (r *repoMongo) ListByRecord(ctx context.Context, expedienteID string) ([]*Avance, error) {
	return r.find(ctx, bson.M{"expedienteId": expedienteID})
}

func (r *repoMongo) ListByTherapist(ctx context.Context, terapeutaUID string) ([]*Avance, error) {
	return r.find(ctx, bson.M{"terapeutaUid": terapeutaUID})
}
