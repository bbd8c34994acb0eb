package messaging

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

type messageDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	SenderID     string             `bson:"senderId"`
	SenderType   string             `bson:"senderType"`
	SenderName   string             `bson:"senderName"`
	ReceiverID   string             `bson:"receiverId"`
	ReceiverName string             `bson:"receiverName"`
	Content      string             `bson:"content"`
	Read         bool               `bson:"read"`
	ReadAt       *time.Time         `bson:"readAt,omitempty"`
	MessageType  string             `bson:"messageType"`
	ReplyTo      string             `bson:"replyTo,omitempty"`
	Urgent       bool               `bson:"urgent"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

func (d *messageDoc) toMessage() *DirectMessage {
	return &DirectMessage{
		ID:           d.ID.Hex(),
		SenderID:     d.SenderID,
		SenderType:   d.SenderType,
		SenderName:   d.SenderName,
		ReceiverID:   d.ReceiverID,
		ReceiverName: d.ReceiverName,
		Content:      d.Content,
		Read:         d.Read,
		ReadAt:       d.ReadAt,
		MessageType:  d.MessageType,
		ReplyTo:      d.ReplyTo,
		Urgent:       d.Urgent,
		CreatedAt:    d.CreatedAt,
	}
}

type messageRepoMongo struct{ coll *mongo.Collection }

func NewDirectMessageRepoMongo(store *mongodb.Store) DirectMessageRepository {
	return &messageRepoMongo{coll: store.Collection(mongodb.DirectMessages)}
}

func (r *messageRepoMongo) Create(ctx context.Context, m *DirectMessage) error {
	doc := messageDoc{
		ID:           primitive.NewObjectID(),
		SenderID:     m.SenderID,
		SenderType:   m.SenderType,
		SenderName:   m.SenderName,
		ReceiverID:   m.ReceiverID,
		ReceiverName: m.ReceiverName,
		Content:      m.Content,
		MessageType:  m.MessageType,
		ReplyTo:      m.ReplyTo,
		Urgent:       m.Urgent,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return err
	}
	*m = *doc.toMessage()
	return nil
}

func (r *messageRepoMongo) GetByID(ctx context.Context, id string) (*DirectMessage, error) {
	oid, err := mongodb.ParseID(id)
	if err != nil {
		return nil, err
	}
	var doc messageDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mongodb.NotFound(err, "message")
	}
	return doc.toMessage(), nil
}

func (r *messageRepoMongo) find(ctx context.Context, filter bson.M, order int) ([]*DirectMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: order}, {Key: "_id", Value: order}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*DirectMessage, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toMessage())
	}
	return out, nil
}

func (r *messageRepoMongo) ListForParty(ctx context.Context, userID string) ([]*DirectMessage, error) {
	return r.find(ctx, bson.M{"$or": bson.A{
		bson.M{"senderId": userID},
		bson.M{"receiverId": userID},
	}}, -1)
}

func (r *messageRepoMongo) ListBetween(ctx context.Context, a, b string) ([]*DirectMessage, error) {
	return r.find(ctx, bson.M{"$or": bson.A{
		bson.M{"senderId": a, "receiverId": b},
		bson.M{"senderId": b, "receiverId": a},
	}}, 1)
}

func (r *messageRepoMongo) MarkRead(ctx context.Context, id string, at time.Time) error {
	oid, err := mongodb.ParseID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$set": bson.M{"read": true, "readAt": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

func (r *messageRepoMongo) Delete(ctx context.Context, id string) error {
	oid, err := mongodb.ParseID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("message")
	}
	return nil
}
