package chat

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

type conversationDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	PatientID     string             `bson:"patientId"`
	DoctorID      string             `bson:"doctorId,omitempty"`
	AppointmentID string             `bson:"appointmentId,omitempty"`
	Title         string             `bson:"title"`
	Messages      []Message          `bson:"messages"`
	LastMessage   string             `bson:"lastMessage"`
	MessageCount  int                `bson:"messageCount"`
	Status        string             `bson:"status"`
	ClosedAt      *time.Time         `bson:"closedAt,omitempty"`
	ClosedBy      string             `bson:"closedBy,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func toConversationDoc(c *Conversation, id primitive.ObjectID) conversationDoc {
	return conversationDoc{
		ID:            id,
		PatientID:     c.PatientID,
		DoctorID:      c.DoctorID,
		AppointmentID: c.AppointmentID,
		Title:         c.Title,
		Messages:      c.Messages,
		LastMessage:   c.LastMessage,
		MessageCount:  c.MessageCount,
		Status:        c.Status,
		ClosedAt:      c.ClosedAt,
		ClosedBy:      c.ClosedBy,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (d *conversationDoc) toConversation() *Conversation {
	msgs := d.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	return &Conversation{
		ID:            d.ID.Hex(),
		PatientID:     d.PatientID,
		DoctorID:      d.DoctorID,
		AppointmentID: d.AppointmentID,
		Title:         d.Title,
		Messages:      msgs,
		LastMessage:   d.LastMessage,
		MessageCount:  d.MessageCount,
		Status:        d.Status,
		ClosedAt:      d.ClosedAt,
		ClosedBy:      d.ClosedBy,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type conversationRepoMongo struct{ coll *mongo.Collection }

func NewConversationRepoMongo(store *mongodb.Store) ConversationRepository {
	return &conversationRepoMongo{coll: store.Collection(mongodb.Conversations)}
}

func (r *conversationRepoMongo) Create(ctx context.Context, c *Conversation) error {
	id := primitive.NewObjectID()
	if _, err := r.coll.InsertOne(ctx, toConversationDoc(c, id)); err != nil {
		return err
	}
	c.ID = id.Hex()
	return nil
}

func (r *conversationRepoMongo) GetByID(ctx context.Context, id string) (*Conversation, error) {
	oid, err := mongodb.ParseID(id)
	if err != nil {
		return nil, err
	}
	var doc conversationDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mongodb.NotFound(err, "conversation")
	}
	return doc.toConversation(), nil
}

func (r *conversationRepoMongo) Save(ctx context.Context, c *Conversation) error {
	oid, err := mongodb.ParseID(c.ID)
	if err != nil {
		return err
	}
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": oid}, toConversationDoc(c, oid))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

func (r *conversationRepoMongo) Delete(ctx context.Context, id string) error {
	oid, err := mongodb.ParseID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

func (r *conversationRepoMongo) find(ctx context.Context, filter bson.M) ([]*Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*Conversation, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toConversation())
	}
	return out, nil
}

func (r *conversationRepoMongo) ListByPatient(ctx context.Context, patientID string) ([]*Conversation, error) {
	return r.find(ctx, bson.M{"patientId": patientID})
}

func (r *conversationRepoMongo) ListForDoctor(ctx context.Context, doctorID string, patientIDs []string) ([]*Conversation, error) {
	or := bson.A{bson.M{"doctorId": doctorID}}
	if len(patientIDs) > 0 {
		or = append(or, bson.M{"patientId": bson.M{"$in": patientIDs}})
	}
	return r.find(ctx, bson.M{"$or": or})
}

func (r *conversationRepoMongo) ForEach(ctx context.Context, fn func(*Conversation) error) error {
	cur, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc conversationDoc
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		if err := fn(doc.toConversation()); err != nil {
			return err
		}
	}
	return cur.Err()
}
