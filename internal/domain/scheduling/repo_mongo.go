package scheduling

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

type appointmentDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	PatientID       string             `bson:"patientId"`
	PatientName     string             `bson:"patientName"`
	DoctorID        string             `bson:"doctorId"`
	DoctorName      string             `bson:"doctorName"`
	Date            string             `bson:"date"`
	Time            string             `bson:"time"`
	ScheduledAt     time.Time          `bson:"scheduledAt"`
	VisitType       string             `bson:"visitType,omitempty"`
	Notes           string             `bson:"notes,omitempty"`
	Status          string             `bson:"status"`
	ReferenceNumber string             `bson:"referenceNumber"`
	ConfirmedAt     *time.Time         `bson:"confirmedAt,omitempty"`
	CancelledAt     *time.Time         `bson:"cancelledAt,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func toAppointmentDoc(a *Appointment, id primitive.ObjectID) appointmentDoc {
	return appointmentDoc{
		ID:              id,
		PatientID:       a.PatientID,
		PatientName:     a.PatientName,
		DoctorID:        a.DoctorID,
		DoctorName:      a.DoctorName,
		Date:            a.Date,
		Time:            a.Time,
		ScheduledAt:     a.ScheduledAt,
		VisitType:       a.VisitType,
		Notes:           a.Notes,
		Status:          a.Status,
		ReferenceNumber: a.ReferenceNumber,
		ConfirmedAt:     a.ConfirmedAt,
		CancelledAt:     a.CancelledAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func (d *appointmentDoc) toAppointment() *Appointment {
	return &Appointment{
		ID:              d.ID.Hex(),
		PatientID:       d.PatientID,
		PatientName:     d.PatientName,
		DoctorID:        d.DoctorID,
		DoctorName:      d.DoctorName,
		Date:            d.Date,
		Time:            d.Time,
		ScheduledAt:     d.ScheduledAt.UTC(),
		VisitType:       d.VisitType,
		Notes:           d.Notes,
		Status:          d.Status,
		ReferenceNumber: d.ReferenceNumber,
		ConfirmedAt:     d.ConfirmedAt,
		CancelledAt:     d.CancelledAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type appointmentRepoMongo struct{ coll *mongo.Collection }

func NewAppointmentRepoMongo(store *mongodb.Store) AppointmentRepository {
	return &appointmentRepoMongo{coll: store.Collection(mongodb.Appointments)}
}

func (r *appointmentRepoMongo) Create(ctx context.Context, a *Appointment) error {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	id := primitive.NewObjectID()
	if _, err := r.coll.InsertOne(ctx, toAppointmentDoc(a, id)); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return ErrDuplicateReference
		}
		return err
	}
	a.ID = id.Hex()
	return nil
}

func (r *appointmentRepoMongo) GetByID(ctx context.Context, id string) (*Appointment, error) {
	oid, err := mongodb.ParseID(id)
	if err != nil {
		return nil, err
	}
	var doc appointmentDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mongodb.NotFound(err, "appointment")
	}
	return doc.toAppointment(), nil
}

func (r *appointmentRepoMongo) Update(ctx context.Context, a *Appointment) error {
	oid, err := mongodb.ParseID(a.ID)
	if err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": oid}, toAppointmentDoc(a, oid))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoMongo) Delete(ctx context.Context, id string) error {
	oid, err := mongodb.ParseID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoMongo) List(ctx context.Context, f ListFilter) ([]*Appointment, error) {
	filter := bson.M{}
	if f.PatientID != "" {
		filter["patientId"] = f.PatientID
	}
	if f.DoctorID != "" {
		filter["doctorId"] = f.DoctorID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.From != nil || f.To != nil {
		window := bson.M{}
		if f.From != nil {
			window["$gte"] = *f.From
		}
		if f.To != nil {
			window["$lt"] = *f.To
		}
		filter["scheduledAt"] = window
	}

	opts := options.Find().SetSort(bson.D{{Key: "scheduledAt", Value: 1}, {Key: "createdAt", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []appointmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*Appointment, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toAppointment())
	}
	return out, nil
}

func (r *appointmentRepoMongo) ActiveAt(ctx context.Context, doctorID string, at time.Time, excludeID string) (bool, error) {
	filter := bson.M{
		"doctorId":    doctorID,
		"scheduledAt": at,
		"status":      bson.M{"$ne": StatusCancelled},
	}
	if excludeID != "" {
		if oid, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter["_id"] = bson.M{"$ne": oid}
		}
	}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
