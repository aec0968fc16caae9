package gallery

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
)

type videoDoc struct {
	Titulo     string `bson:"titulo"`
	YoutubeURL string `bson:"youtubeUrl"`
}

type galleryDoc struct {
	ID                 string     `bson:"_id"`
	Nombre             string     `bson:"nombre"`
	Descripcion        string     `bson:"descripcion"`
	Videos             []videoDoc `bson:"videos"`
	CreadaPor          string     `bson:"creadaPor"`
	PacientesAsignados []string   `bson:"pacientesAsignados"`
	FechaCreacion      time.Time  `bson:"fechaCreacion"`
}

func toGalleryDoc(g *Galeria) galleryDoc {
	return galleryDoc{
		ID:          g.ID,
		Nombre:      g.Nombre,
		Descripcion: g.Descripcion,
		Videos: lo.Map(g.Videos, func(v Video, _ int) videoDoc {
			return videoDoc{Titulo: v.Titulo, YoutubeURL: v.YoutubeURL}
		}),
		CreadaPor:          g.CreadaPor,
		PacientesAsignados: g.PacientesAsignados,
		FechaCreacion:      g.FechaCreacion,
	}
}

func (d galleryDoc) toGallery() *Galeria {
	return &Galeria{
		ID:          d.ID,
		Nombre:      d.Nombre,
		Descripcion: d.Descripcion,
		Videos: lo.Map(d.Videos, func(v videoDoc, _ int) Video {
			return Video{Titulo: v.Titulo, YoutubeURL: v.YoutubeURL}
		}),
		CreadaPor:          d.CreadaPor,
		PacientesAsignados: d.PacientesAsignados,
		FechaCreacion:      d.FechaCreacion,
	}
}

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(store *docstore.Store) Repository {
	return &repoMongo{coll: store.Collection(docstore.Galerias)}
}

func (r *repoMongo) Create(ctx context.Context, g *Galeria) error {
	_, err := r.coll.InsertOne(ctx, toGalleryDoc(g))
	return err
}

func (r *repoMongo) GetByID(ctx context.Context, id string) (*Galeria, error) {
	var d galleryDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrGalleryNotFound
		}
		return nil, err
	}
	return d.toGallery(), nil
}

func (r *repoMongo) find(ctx context.Context, filter bson.M) ([]*Galeria, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "fechaCreacion", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []galleryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d galleryDoc, _ int) *Galeria { return d.toGallery() }), nil
}

func (r *repoMongo) ListByCreator(ctx context.Context, terapeutaUID string) ([]*Galeria, error) {
	return r.find(ctx, bson.M{"creadaPor": terapeutaUID})
}

// ListAssignedTo relies on Mongo's array-contains equality match.
func (r *repoMongo) ListAssignedTo(ctx context.Context, pacienteUID string) ([]*Galeria, error) {
	return r.find(ctx, bson.M{"pacientesAsignados": pacienteUID})
}

func (r *repoMongo) UpdateAssignments(ctx context.Context, id string, pacientes []string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"pacientesAsignados": pacientes}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrGalleryNotFound
	}
	return nil
}
