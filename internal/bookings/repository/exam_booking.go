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

const ExamBookingCollection = "exam_bookings"

type ExamBookingRepository interface {
	// Create fails with ErrDuplicate when a non-cancelled exam booking
	// already uses the purchase.
	Create(ctx context.Context, booking *model.ExamBooking) error
	FindByID(ctx context.Context, id string) (*model.ExamBooking, error)
	Find(ctx context.Context, query model.ExamBookingQuery) ([]*model.ExamBooking, error)
	Count(ctx context.Context, query model.ExamBookingQuery) (int64, error)
	UpdateStatus(ctx context.Context, id string, expected, status model.ExamBookingStatus, adminMessage *string, now time.Time) (*model.ExamBooking, error)
}

type mongoExamBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoExamBookingRepository(cfg *config.Config) ExamBookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoExamBookingRepository{
		cfg:        cfg,
		collection: db.Collection(ExamBookingCollection),
	}
}

func (r *mongoExamBookingRepository) Create(ctx context.Context, booking *model.ExamBooking) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: purchase %s", bookingserrors.ErrDuplicate, booking.PurchaseID)
		}
		return fmt.Errorf("failed to create exam booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoExamBookingRepository) FindByID(ctx context.Context, id string) (*model.ExamBooking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.ExamBooking
	if err := r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find exam booking: %w", err)
	}
	return &booking, nil
}

func (r *mongoExamBookingRepository) Find(ctx context.Context, query model.ExamBookingQuery) ([]*model.ExamBooking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(query.Offset)
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}

	cursor, err := r.collection.Find(ctx, examFilter(query), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find exam bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.ExamBooking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode exam bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoExamBookingRepository) Count(ctx context.Context, query model.ExamBookingQuery) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, examFilter(query))
	if err != nil {
		return 0, fmt.Errorf("failed to count exam bookings: %w", err)
	}
	return count, nil
}

func (r *mongoExamBookingRepository) UpdateStatus(ctx context.Context, id string, expected, status model.ExamBookingStatus, adminMessage *string, now time.Time) (*model.ExamBooking, error) {
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

	var booking model.ExamBooking
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objectID, "status": expected},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&booking)
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update exam booking status: %w", err)
	}

	if _, findErr := r.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, bookingserrors.ErrStatusConflict
}

func examFilter(query model.ExamBookingQuery) bson.M {
	filter := bson.M{}
	if query.UserID != "" {
		filter["user_id"] = query.UserID
	}
	if query.Status != "" {
		filter["status"] = query.Status
	}
	return filter
}
