package identity

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/mongodb"
)

type userDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Name           string             `bson:"name"`
	Email          string             `bson:"email"`
	Password       string             `bson:"password"`
	Role           string             `bson:"role"`
	Specialization string             `bson:"specialization,omitempty"`
	Experience     int                `bson:"experience,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func (d *userDoc) toUser() *User {
	return &User{
		ID:             d.ID.Hex(),
		Name:           d.Name,
		Email:          d.Email,
		PasswordHash:   d.Password,
		Role:           d.Role,
		Specialization: d.Specialization,
		Experience:     d.Experience,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type userRepoMongo struct{ coll *mongo.Collection }

func NewUserRepoMongo(store *mongodb.Store) UserRepository {
	return &userRepoMongo{coll: store.Collection(mongodb.Users)}
}

func (r *userRepoMongo) Create(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	doc := userDoc{
		ID:             primitive.NewObjectID(),
		Name:           u.Name,
		Email:          u.Email,
		Password:       u.PasswordHash,
		Role:           u.Role,
		Specialization: u.Specialization,
		Experience:     u.Experience,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return apperr.Conflict("email already registered")
		}
		return err
	}
	*u = *doc.toUser()
	return nil
}

func (r *userRepoMongo) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mongodb.NotFound(err, "user")
	}
	return doc.toUser(), nil
}

func (r *userRepoMongo) GetByID(ctx context.Context, id string) (*User, error) {
	oid, err := mongodb.ParseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *userRepoMongo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userRepoMongo) ListByRole(ctx context.Context, role string) ([]*User, error) {
	cur, err := r.coll.Find(ctx, bson.M{"role": role}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toUser())
	}
	return users, nil
}
