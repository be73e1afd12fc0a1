package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"licensedesk/internal/migrations/mongo/validators"
	"licensedesk/pkg/logger"
)

// Collection names mirror the repositories that read them.
const (
	SlotsCollection        = "slots"
	AppointmentCollection  = "appointment_bookings"
	CallCollection         = "call_bookings"
	PurchaseCollection     = "voucher_purchases"
	ExamBookingsCollection = "exam_bookings"
)

var (
	// liveBookingStatuses is every status but rejected. Partial indexes
	// cannot express $ne.
	liveBookingStatuses = []string{"pending", "confirmed", "reschedule_requested"}
	liveExamStatuses    = []string{"submitted", "approved", "exam_pass_issued", "completed"}

	SlotsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "kind", Value: 1},
			{Key: "is_available", Value: 1},
			{Key: "ends_at", Value: 1},
			{Key: "date", Value: 1},
			{Key: "start_time", Value: 1},
		}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "location", Value: 1}, {Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "holds.expires_at", Value: 1}}},
	}

	// SingleBookingIndexes hold at most one live booking per slot.
	SingleBookingIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "slot_id", Value: 1}},
			Options: options.Index().
				SetName("slot_id_live_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": bson.M{"$in": liveBookingStatuses}}),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	PurchaseIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "slot_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	ExamBookingsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "purchase_id", Value: 1}},
			Options: options.Index().
				SetName("purchase_id_live_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": bson.M{"$in": liveExamStatuses}}),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// Collections is the full schema applied by RunMigration.
func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		SlotsCollection:        {Indexes: SlotsIndexes, Validator: validators.SlotValidator},
		AppointmentCollection:  {Indexes: SingleBookingIndexes, Validator: validators.BookingValidator},
		CallCollection:         {Indexes: SingleBookingIndexes, Validator: validators.BookingValidator},
		PurchaseCollection:     {Indexes: PurchaseIndexes, Validator: validators.BookingValidator},
		ExamBookingsCollection: {Indexes: ExamBookingsIndexes, Validator: validators.ExamBookingValidator},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
