package record

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

type recordDoc struct {
	ID              string    `bson:"_id"`
	PacienteUID     string    `bson:"pacienteUid"`
	TerapeutaUID    string    `bson:"terapeutaUid"`
	Descripcion     string    `bson:"descripcion"`
	Diagnostico     *string   `bson:"diagnostico,omitempty"`
	Objetivos       *string   `bson:"objetivos,omitempty"`
	PlanTratamiento *string   `bson:"planTratamiento,omitempty"`
	FechaCreacion   time.Time `bson:"fechaCreacion"`
}

func toRecordDoc(e *Expediente) recordDoc {
	return recordDoc{
		ID:              e.ID,
		PacienteUID:     e.PacienteUID,
		TerapeutaUID:    e.TerapeutaUID,
		Descripcion:     e.Descripcion,
		Diagnostico:     e.Diagnostico.Ptr(),
		Objetivos:       e.Objetivos.Ptr(),
		PlanTratamiento: e.PlanTratamiento.Ptr(),
		FechaCreacion:   e.FechaCreacion,
	}
}

func (d recordDoc) toRecord() *Expediente {
	return &Expediente{
		ID:              d.ID,
		PacienteUID:     d.PacienteUID,
		TerapeutaUID:    d.TerapeutaUID,
		Descripcion:     d.Descripcion,
		Diagnostico:     optional.FromPtr(d.Diagnostico),
		Objetivos:       optional.FromPtr(d.Objetivos),
		PlanTratamiento: optional.FromPtr(d.PlanTratamiento),
		FechaCreacion:   d.FechaCreacion,
	}
}

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(store *docstore.Store) Repository {
	return &repoMongo{coll: store.Collection(docstore.Expedientes)}
}

func (r *repoMongo) Create(ctx context.Context, e *Expediente) error {
	_, err := r.coll.InsertOne(ctx, toRecordDoc(e))
	return err
}

func (r *repoMongo) GetByID(ctx context.Context, id string) (*Expediente, error) {
	var d recordDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return d.toRecord(), nil
}

func (r *repoMongo) find(ctx context.Context, filter bson.M, order int) ([]*Expediente, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "fechaCreacion", Value: order}}))
	if err != nil {
		return nil, err
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*Expediente, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toRecord())
	}
	return items, nil
}

func (r *repoMongo) ListByTherapist(ctx context.Context, terapeutaUID string) ([]*Expediente, error) {
	return r.find(ctx, bson.M{"terapeutaUid": terapeutaUID}, -1)
}

func (r *repoMongo) ListByPatient(ctx context.Context, pacienteUID string) ([]*Expediente, error) {
	return r.find(ctx, bson.M{"pacienteUid": pacienteUID}, 1)
}

func (r *repoMongo) UpdateClinical(ctx context.Context, e *Expediente) error {
	set, unset := bson.M{}, bson.M{}
	for field, v := range map[string]optional.Value[string]{
		"diagnostico":     e.Diagnostico,
		"objetivos":       e.Objetivos,
		"planTratamiento": e.PlanTratamiento,
	} {
		if s, ok := v.Get(); ok {
			set[field] = s
		} else {
			unset[field] = ""
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := r.coll.UpdateByID(ctx, e.ID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}
