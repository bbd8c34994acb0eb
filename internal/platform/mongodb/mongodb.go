package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/feelwell/feelwell/internal/platform/apperr"
)

// Collection names.
const (
	Users          = "users"
	Appointments   = "appointments"
	Conversations  = "conversations"
	DirectMessages = "messages"
)

type Store struct {
	Client *mongo.Client
	DB     *mongo.Database
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &Store{Client: client, DB: client.Database(database)}, nil
}

func (s *Store) Collection(name string) *mongo.Collection {
	return s.DB.Collection(name)
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

func (s *Store) Name() string { return "mongodb" }

func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Stats() interface{} {
	return map[string]interface{}{
		"database": s.DB.Name(),
		"sessions": s.Client.NumberSessionsInProgress(),
	}
}

// Indexes lists the indexes every collection needs. referenceNumber and email
// uniqueness are enforced here rather than in application code.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		Users: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		Appointments: {
			{Keys: bson.D{{Key: "referenceNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "scheduledAt", Value: 1}}},
			{Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "scheduledAt", Value: 1}}},
		},
		Conversations: {
			{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "updatedAt", Value: -1}}},
			{Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "updatedAt", Value: -1}}},
		},
		DirectMessages: {
			{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	for coll, models := range Indexes() {
		if _, err := s.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// ParseID converts a hex id to an ObjectID. A malformed id is a validation
// error.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid id")
	}
	return oid, nil
}

// NotFound maps mongo.ErrNoDocuments to a NotFound error for what.
func NotFound(err error, what string) error {
	if err == mongo.ErrNoDocuments {
		return apperr.NotFound(what)
	}
	return err
}

func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
