package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	AppointmentsCollection = "appointments"
	EventLogsCollection    = "event_logs"
)

// appointmentDocument mirrors Appointment. Active duplicates status != cancelled
// so the unique index on the booking key can be partial on it.
type appointmentDocument struct {
	ID        string    `bson:"_id"`
	PatientID string    `bson:"patient_id"`
	DoctorID  string    `bson:"doctor_id"`
	Date      time.Time `bson:"date"`
	TimeSlot  string    `bson:"time_slot"`
	Status    string    `bson:"status"`
	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toDocument(a Appointment) appointmentDocument {
	return appointmentDocument{
		ID:        a.ID.String(),
		PatientID: a.PatientID.String(),
		DoctorID:  a.DoctorID.String(),
		Date:      a.Date,
		TimeSlot:  a.TimeSlot,
		Status:    string(a.Status),
		Active:    a.Status.Active(),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (doc appointmentDocument) toAppointment() (*Appointment, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("appointment id %q: %w", doc.ID, err)
	}
	patientID, err := uuid.Parse(doc.PatientID)
	if err != nil {
		return nil, fmt.Errorf("appointment %s patient_id: %w", id, err)
	}
	doctorID, err := uuid.Parse(doc.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("appointment %s doctor_id: %w", id, err)
	}
	return &Appointment{
		ID:        id,
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      CalendarDate(doc.Date.UTC()),
		TimeSlot:  doc.TimeSlot,
		Status:    AppointmentStatus(doc.Status),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

type MongoRepository struct {
	appointments *mongo.Collection
	events       *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		appointments: db.Collection(AppointmentsCollection),
		events:       db.Collection(EventLogsCollection),
	}
}

// EnsureIndexes creates the partial unique index that backs CreateIfAbsent.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.appointments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "date", Value: 1},
				{Key: "time_slot", Value: 1},
			},
			Options: options.Index().
				SetName("active_booking_key").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create appointment indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) CreateIfAbsent(ctx context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	doc := toDocument(appt)

	// Upsert keyed on the active booking: an existing match means the slot is taken.
	// Two racing upserts that both miss are split by the unique index.
	filter := bson.M{
		"doctor_id": doc.DoctorID,
		"date":      doc.Date,
		"time_slot": doc.TimeSlot,
		"active":    true,
	}
	update := bson.M{"$setOnInsert": doc}

	res, err := r.appointments.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	if res.UpsertedCount == 0 {
		return nil, ErrSlotConflict
	}

	return &appt, nil
}

func (r *MongoRepository) FindByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]BookedSlot, error) {
	filter := bson.M{"doctor_id": doctorID.String(), "date": date}
	projection := options.Find().SetProjection(bson.M{"time_slot": 1, "status": 1})

	cur, err := r.appointments.Find(ctx, filter, projection)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var result []BookedSlot
	for cur.Next(ctx) {
		var doc appointmentDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, BookedSlot{TimeSlot: doc.TimeSlot, Status: AppointmentStatus(doc.Status)})
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *MongoRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var doc appointmentDocument
	err := r.appointments.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toAppointment()
}

func (r *MongoRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	query := bson.M{}
	if filter.PatientID != nil {
		query["patient_id"] = filter.PatientID.String()
	}
	if filter.DoctorID != nil {
		query["doctor_id"] = filter.DoctorID.String()
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := r.appointments.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var result []Appointment
	for cur.Next(ctx) {
		var doc appointmentDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		a, err := doc.toAppointment()
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *MongoRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	filter := bson.M{"_id": id.String(), "status": string(from)}
	update := bson.M{"$set": bson.M{
		"status":     string(to),
		"active":     to.Active(),
		"updated_at": time.Now().UTC(),
	}}

	var doc appointmentDocument
	err := r.appointments.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toAppointment()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	n, err := r.appointments.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrStaleStatus
}

func (r *MongoRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	doc := bson.M{
		"event_type": ev.EventType,
		"payload":    ev.Payload,
		"created_at": createdAt,
	}
	if ev.AppointmentID != nil {
		doc["appointment_id"] = ev.AppointmentID.String()
	}

	if _, err := r.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.appointments.Database().Client().Ping(ctx, nil)
}
