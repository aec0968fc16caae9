package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

type accountDoc struct {
	UID          string    `bson:"_id"`
	Email        string    `bson:"email"`
	DisplayName  string    `bson:"displayName"`
	PasswordHash *string   `bson:"passwordHash,omitempty"`
	Rol          string    `bson:"rol,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func toAccountDoc(a *Account) accountDoc {
	return accountDoc{
		UID:          a.UID,
		Email:        a.Email,
		DisplayName:  a.DisplayName,
		PasswordHash: a.PasswordHash.Ptr(),
		Rol:          a.Rol,
		CreatedAt:    a.CreatedAt,
	}
}

func (d accountDoc) toAccount() *Account {
	return &Account{
		UID:          d.UID,
		Email:        d.Email,
		DisplayName:  d.DisplayName,
		PasswordHash: optional.FromPtr(d.PasswordHash),
		Rol:          d.Rol,
		CreatedAt:    d.CreatedAt,
	}
}

type accountRepoMongo struct{ coll *mongo.Collection }

func NewAccountRepoMongo(store *docstore.Store) AccountRepository {
	return &accountRepoMongo{coll: store.Collection(docstore.Cuentas)}
}

func (r *accountRepoMongo) Create(ctx context.Context, a *Account) error {
	if a.UID == "" {
		a.UID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := r.coll.InsertOne(ctx, toAccountDoc(a))
	if docstore.IsDuplicateKey(err) {
		return ErrEmailExists
	}
	return err
}

func (r *accountRepoMongo) findOne(ctx context.Context, filter bson.M) (*Account, error) {
	var d accountDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return d.toAccount(), nil
}

func (r *accountRepoMongo) GetByID(ctx context.Context, uid string) (*Account, error) {
	return r.findOne(ctx, bson.M{"_id": uid})
}

func (r *accountRepoMongo) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *accountRepoMongo) SetRole(ctx context.Context, uid, rol string) error {
	return r.set(ctx, uid, "rol", rol)
}

func (r *accountRepoMongo) SetPasswordHash(ctx context.Context, uid, hash string) error {
	return r.set(ctx, uid, "passwordHash", hash)
}

func (r *accountRepoMongo) set(ctx context.Context, uid, field, value string) error {
	res, err := r.coll.UpdateByID(ctx, uid, bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *accountRepoMongo) Delete(ctx context.Context, uid string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": uid})
	return err
}

type resetTokenDoc struct {
	TokenHash string    `bson:"_id"`
	UID       string    `bson:"uid"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

type resetTokenRepoMongo struct{ coll *mongo.Collection }

func NewResetTokenRepoMongo(store *docstore.Store) ResetTokenRepository {
	return &resetTokenRepoMongo{coll: store.Collection(docstore.Restablecimientos)}
}

func (r *resetTokenRepoMongo) Create(ctx context.Context, t *ResetToken) error {
	t.CreatedAt = time.Now().UTC()
	_, err := r.coll.InsertOne(ctx, resetTokenDoc{
		TokenHash: t.TokenHash,
		UID:       t.UID,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	})
	return err
}

func (r *resetTokenRepoMongo) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var d resetTokenDoc
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": tokenHash}).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return "", ErrResetTokenInvalid
		}
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	if !now.Before(d.ExpiresAt) {
		return "", ErrResetTokenInvalid
	}
	return d.UID, nil
}

func (r *resetTokenRepoMongo) DeleteByUID(ctx context.Context, uid string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"uid": uid})
	return err
}
