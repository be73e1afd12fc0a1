package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "licensedesk/internal/bookings/errors"
	"licensedesk/pkg/config"
	mongotx "licensedesk/pkg/db/mongo"
	"licensedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	AppointmentCollection = "appointment_bookings"
	CallCollection        = "call_bookings"
	PurchaseCollection    = "voucher_purchases"
)

// CollectionFor maps a slot kind to the collection its bookings live in.
func CollectionFor(kind model.SlotKind) string {
	switch kind {
	case model.KindVoucher:
		return PurchaseCollection
	case model.KindCall:
		return CallCollection
	default:
		return AppointmentCollection
	}
}

// BookingRepository stores appointment bookings, call bookings and voucher
// purchases, one collection per slot kind.
type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, kind model.SlotKind, id string) (*model.Booking, error)
	Find(ctx context.Context, query model.BookingQuery) ([]*model.Booking, error)
	Count(ctx context.Context, query model.BookingQuery) (int64, error)
	// UpdateStatus applies a review only if the booking is still in expected.
	UpdateStatus(ctx context.Context, kind model.SlotKind, id string, expected, status model.BookingStatus, adminMessage *string, now time.Time) (*model.Booking, error)
}

type mongoBookingRepository struct {
	cfg *config.Config
	db  *mongo.Database
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	return &mongoBookingRepository{
		cfg: cfg,
		db:  cfg.Client.Mongo.Database(cfg.MongoDatabaseName),
	}
}

func (r *mongoBookingRepository) collection(kind model.SlotKind) *mongo.Collection {
	return r.db.Collection(CollectionFor(kind))
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection(booking.Kind).InsertOne(ctx, booking)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: slot %s", bookingserrors.ErrDuplicate, booking.SlotID)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, kind model.SlotKind, id string) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err = r.collection(kind).FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) Find(ctx context.Context, query model.BookingQuery) ([]*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(query.Offset)
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}

	cursor, err := r.collection(query.Kind).Find(ctx, bookingFilter(query), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Count(ctx context.Context, query model.BookingQuery) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection(query.Kind).CountDocuments(ctx, bookingFilter(query))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, kind model.SlotKind, id string, expected, status model.BookingStatus, adminMessage *string, now time.Time) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	set := bson.M{"status": status, "updated_at": now}
	if adminMessage != nil {
		set["admin_message"] = *adminMessage
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking model.Booking
	err = r.collection(kind).FindOneAndUpdate(ctx,
		bson.M{"_id": objectID, "status": expected},
		bson.M{"$set": set},
		opts,
	).Decode(&booking)
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	if _, findErr := r.FindByID(ctx, kind, id); findErr != nil {
		return nil, findErr
	}
	return nil, bookingserrors.ErrStatusConflict
}

func bookingFilter(query model.BookingQuery) bson.M {
	filter := bson.M{}
	if query.UserID != "" {
		filter["user_id"] = query.UserID
	}
	if query.SlotID != "" {
		filter["slot_id"] = query.SlotID
	}
	if query.Status != "" {
		filter["status"] = query.Status
	}
	return filter
}
