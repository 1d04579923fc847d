package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	appointmentserrors "appointease/internal/appointments/errors"
	"appointease/pkg/config"
	mongodb "appointease/pkg/db/mongo"
	"appointease/pkg/model"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName        = "appointments"
	CountersCollection    = "counters"
	strongIDCounterPrefix = "appointment_strong_id:"
)

type mongoAppointmentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	counters   *mongo.Collection
}

// NewMongoAppointmentRepository relies on the unique partial index on
// (employee_id, date, time) for confirmed appointments created by cmd/migrate.
func NewMongoAppointmentRepository(cfg *config.Config) AppointmentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAppointmentRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		counters:   db.Collection(CountersCollection),
	}
}

// Reserve takes the next yearly sequence and inserts. The unique partial
// index is the only point where concurrent bookings meet; a lost race
// leaves a gap in the sequence.
func (r *mongoAppointmentRepository) Reserve(ctx context.Context, appt *model.Appointment) error {
	appt.Status = model.StatusConfirmed
	year := appt.CreatedAt.Year()

	seq, err := r.nextSequence(ctx, year)
	if err != nil {
		return err
	}
	appt.StrongID = model.FormatStrongID(year, seq)

	insertCtx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(insertCtx, appt); err != nil {
		appt.StrongID = ""
		if mongodb.IsDuplicateKey(err) {
			return appointmentserrors.ErrSlotTaken
		}
		return errors.Wrap(err, "insert appointment")
	}
	return nil
}

func (r *mongoAppointmentRepository) nextSequence(ctx context.Context, year int) (int64, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": fmt.Sprintf("%s%d", strongIDCounterPrefix, year)},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, errors.Wrapf(err, "increment strong id counter for %d", year)
	}
	return counter.Seq, nil
}

func (r *mongoAppointmentRepository) findOne(ctx context.Context, filter bson.M) (*model.Appointment, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var appt model.Appointment
	if err := r.collection.FindOne(ctx, filter).Decode(&appt); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appointmentserrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "find appointment")
	}
	return &appt, nil
}

func (r *mongoAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoAppointmentRepository) FindByStrongID(ctx context.Context, strongID string) (*model.Appointment, error) {
	return r.findOne(ctx, bson.M{"strong_id": strongID})
}

func (r *mongoAppointmentRepository) FindByEmail(ctx context.Context, email string) ([]*model.Appointment, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "strong_id", Value: -1},
	})
	cursor, err := r.collection.Find(ctx, bson.M{"customer.email": email}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find appointments by email")
	}
	defer cursor.Close(ctx)

	appointments := []*model.Appointment{}
	if err := cursor.All(ctx, &appointments); err != nil {
		return nil, errors.Wrap(err, "decode appointments")
	}
	return appointments, nil
}

func (r *mongoAppointmentRepository) Cancel(ctx context.Context, id string, at time.Time) (*model.Appointment, bool, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var appt model.Appointment
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": model.StatusConfirmed},
		bson.M{"$set": bson.M{
			"status":       model.StatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&appt)
	if err == nil {
		return &appt, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, errors.Wrap(err, "cancel appointment")
	}

	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// Move is a single-document update, so the unique index swaps the occupied
// cell atomically: the new cell is checked and taken in the same write that
// releases the old one.
func (r *mongoAppointmentRepository) Move(ctx context.Context, id string, slot model.Slot, startsAt, at time.Time) (*model.Appointment, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{
		"employee_id": slot.EmployeeID,
		"date":        slot.Date,
		"time":        slot.Time,
		"starts_at":   startsAt,
		"updated_at":  at,
	}
	if slot.ServiceID != 0 {
		set["service_id"] = slot.ServiceID
	}

	var appt model.Appointment
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": model.StatusConfirmed},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&appt)
	switch {
	case err == nil:
		return &appt, nil
	case mongodb.IsDuplicateKey(err):
		return nil, appointmentserrors.ErrSlotTaken
	case errors.Is(err, mongo.ErrNoDocuments):
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, appointmentserrors.ErrCancelled
	default:
		return nil, errors.Wrap(err, "move appointment")
	}
}

func (r *mongoAppointmentRepository) IsOccupied(ctx context.Context, slot model.Slot) (bool, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, bson.M{
		"employee_id": slot.EmployeeID,
		"date":        slot.Date,
		"time":        slot.Time,
		"status":      model.StatusConfirmed,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "count slot occupancy")
	}
	return n > 0, nil
}

func (r *mongoAppointmentRepository) confirmedSlots(ctx context.Context, filter bson.M) ([]model.Slot, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter["status"] = model.StatusConfirmed
	opts := options.Find().SetProjection(bson.M{"employee_id": 1, "date": 1, "time": 1})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find confirmed slots")
	}
	defer cursor.Close(ctx)

	var slots []model.Slot
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, errors.Wrap(err, "decode confirmed slots")
	}
	return slots, nil
}

func (r *mongoAppointmentRepository) OccupiedTimes(ctx context.Context, employeeID int64, date string) ([]string, error) {
	slots, err := r.confirmedSlots(ctx, bson.M{"employee_id": employeeID, "date": date})
	if err != nil {
		return nil, err
	}
	times := make([]string, 0, len(slots))
	for _, s := range slots {
		times = append(times, s.Time)
	}
	sort.Strings(times)
	return times, nil
}

func (r *mongoAppointmentRepository) OccupiedBetween(ctx context.Context, employeeID int64, fromDate, toDate string) (map[string]bool, error) {
	slots, err := r.confirmedSlots(ctx, bson.M{
		"employee_id": employeeID,
		"date":        bson.M{"$gte": fromDate, "$lte": toDate},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(slots))
	for _, s := range slots {
		out[s.OccupancyKey()] = true
	}
	return out, nil
}
