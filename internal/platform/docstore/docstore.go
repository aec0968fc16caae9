// Package docstore connects to the MongoDB document backend.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names shared by every repository.
const (
	Usuarios          = "usuarios"
	Expedientes       = "expedientes"
	Sesiones          = "sesiones"
	Avances           = "avances"
	Galerias          = "galerias"
	Cuentas           = "cuentas"
	Restablecimientos = "restablecimientos"
)

// Store wraps a connected client and the application database.
type Store struct {
	client *mongo.Client
	DB     *mongo.Database
}

// Connect dials uri, verifies the connection and ensures indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{client: client, DB: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Collection(name string) *mongo.Collection {
	return s.DB.Collection(name)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		Cuentas: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		Usuarios: {
			{Keys: bson.D{{Key: "rol", Value: 1}}},
		},
		Expedientes: {
			{Keys: bson.D{{Key: "terapeutaUid", Value: 1}, {Key: "fechaCreacion", Value: -1}}},
			{Keys: bson.D{{Key: "pacienteUid", Value: 1}, {Key: "fechaCreacion", Value: 1}}},
		},
		Sesiones: {
			{Keys: bson.D{{Key: "expedienteId", Value: 1}, {Key: "fecha", Value: 1}}},
			{Keys: bson.D{{Key: "terapeutaUid", Value: 1}, {Key: "fecha", Value: 1}}},
			{Keys: bson.D{{Key: "pacienteUid", Value: 1}, {Key: "fecha", Value: 1}}},
		},
		Avances: {
			{Keys: bson.D{{Key: "pacienteUid", Value: 1}, {Key: "fechaRegistro", Value: -1}}},
			{Keys: bson.D{{Key: "expedienteId", Value: 1}, {Key: "fechaRegistro", Value: -1}}},
			{Keys: bson.D{{Key: "terapeutaUid", Value: 1}, {Key: "fechaRegistro", Value: -1}}},
		},
		Galerias: {
			{Keys: bson.D{{Key: "creadaPor", Value: 1}}},
			{Keys: bson.D{{Key: "pacientesAsignados", Value: 1}}},
		},
		Restablecimientos: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
	for coll, models := range indexes {
		if _, err := s.DB.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// IsNotFound reports whether err means no document matched.
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
